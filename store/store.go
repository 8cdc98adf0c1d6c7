package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Store provides typed access to the documents kept by a Driver.
type Store struct {
	driver Driver
	logger *slog.Logger
}

// New creates a new instance of Store.
func New(driver Driver) *Store {
	return &Store{
		driver: driver,
		logger: slog.Default(),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// LoadJSON decodes the document stored under key into v.
// A missing document leaves v untouched and reports found=false with a nil error.
func (s *Store) LoadJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.driver.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// LoadJSONOrDefault behaves like LoadJSON but downgrades read failures to a
// warning so callers can continue with their default document.
func (s *Store) LoadJSONOrDefault(ctx context.Context, key string, v any) {
	if _, err := s.LoadJSON(ctx, key, v); err != nil {
		s.logger.WarnContext(ctx, "falling back to default document", "key", key, "error", err)
	}
}

// SaveJSON encodes v and stores it under key.
func (s *Store) SaveJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.driver.Save(ctx, key, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
