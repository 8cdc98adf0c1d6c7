package store

import (
	"context"
	"sync"
)

// MemoryDriver keeps documents in process memory. Used by tests and by the
// CLI when no database is configured.
type MemoryDriver struct {
	mu   sync.RWMutex
	docs map[string][]byte

	// FailSaves makes every Save return SaveErr (test hook).
	FailSaves bool
	SaveErr   error
	// FailLoads makes every Load return LoadErr (test hook).
	FailLoads bool
	LoadErr   error
}

// NewMemoryDriver creates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{docs: make(map[string][]byte)}
}

func (d *MemoryDriver) Load(_ context.Context, key string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.FailLoads {
		return nil, d.LoadErr
	}
	data, ok := d.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (d *MemoryDriver) Save(_ context.Context, key string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailSaves {
		return d.SaveErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	d.docs[key] = buf
	return nil
}

func (d *MemoryDriver) Close() error {
	return nil
}
