package notify

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Channel is a Notifier with a name.
type Channel interface {
	Notifier
	Name() string
}

// Dispatcher fans messages out to registered channels, dropping those
// below the minimum level.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]Channel
	minimum  Level
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher that forwards messages at or above minimum.
func NewDispatcher(minimum Level) *Dispatcher {
	return &Dispatcher{
		channels: make(map[string]Channel),
		minimum:  minimum,
		logger:   slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (d *Dispatcher) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// Register adds or replaces a channel.
func (d *Dispatcher) Register(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[ch.Name()] = ch
	d.logger.Info("registered notification channel", "channel", ch.Name())
}

// Channels returns the registered channel names, sorted.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Allows reports whether a message at level passes the filter.
func (d *Dispatcher) Allows(level Level) bool {
	return level.Rank() >= d.minimum.Rank()
}

// Notify sends msg to every channel. It returns the joined errors of the
// channels that failed.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) error {
	if !d.Allows(msg.Level) {
		d.logger.DebugContext(ctx, "notification below threshold", "level", msg.Level, "minimum", d.minimum)
		return nil
	}

	d.mu.RLock()
	channels := make([]Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		channels = append(channels, ch)
	}
	d.mu.RUnlock()

	var errs []error
	for _, ch := range channels {
		if err := ch.Notify(ctx, msg); err != nil {
			errs = append(errs, errors.Wrapf(err, "channel %s", ch.Name()))
		}
	}
	return stderrors.Join(errs...)
}
