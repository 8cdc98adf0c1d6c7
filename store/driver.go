package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Driver.Load when no document exists for the key.
var ErrNotFound = errors.New("document not found")

// Document keys used by the services.
const (
	KeyCampaignTargets = "campaign_targets"
	KeyPendingActions  = "pending_actions"
	KeyActionHistory   = "action_history"
	KeyLearnings       = "action_learnings"
	KeyPendingAnalysis = "pending_analysis"
)

// Driver is an interface for store driver.
// Every document is an opaque JSON blob addressed by key; drivers do not
// interpret the payload.
type Driver interface {
	// Load returns the stored document or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save replaces the document stored under key.
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}
