// Package target persists operator-set KPI targets per campaign and per
// campaign type.
package target

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	apperrors "github.com/hrygo/adpilot/internal/errors"
	"github.com/hrygo/adpilot/store"
)

// Target names.
const (
	TargetCPA    = "target_cpa"
	TargetROAS   = "target_roas"
	TargetCPF    = "target_cpf"
	CPFWarning   = "cpf_warning"
	CPFCritical  = "cpf_critical"
	ROASWarning  = "roas_warning"
	ROASCritical = "roas_critical"
)

// Campaign types used as default keys.
const (
	TypeTraffic = "traffic"
	TypeSales   = "sales"
)

var knownTargets = map[string]bool{
	TargetCPA:    true,
	TargetROAS:   true,
	TargetCPF:    true,
	CPFWarning:   true,
	CPFCritical:  true,
	ROASWarning:  true,
	ROASCritical: true,
}

// TargetSet holds numeric targets keyed by name.
type TargetSet map[string]float64

// Value returns the named target and whether it is set.
func (t TargetSet) Value(name string) (float64, bool) {
	v, ok := t[name]
	return v, ok
}

// Clone returns an independent copy.
func (t TargetSet) Clone() TargetSet {
	if t == nil {
		return TargetSet{}
	}
	return maps.Clone(t)
}

// CampaignTargets is the campaign-specific entry of the document.
type CampaignTargets struct {
	Name      string    `json:"name"`
	Targets   TargetSet `json:"targets"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is the persisted layout under store.KeyCampaignTargets.
type Document struct {
	Defaults  map[string]TargetSet       `json:"defaults"`
	Campaigns map[string]CampaignTargets `json:"campaigns"`
}

// DefaultDocument returns the built-in defaults.
func DefaultDocument() Document {
	return Document{
		Defaults: map[string]TargetSet{
			TypeTraffic: {TargetCPF: 50, CPFWarning: 100, CPFCritical: 200},
			TypeSales:   {TargetCPA: 5000, TargetROAS: 3.0},
		},
		Campaigns: map[string]CampaignTargets{},
	}
}

// Store reads and patches the target document. Every operation re-reads
// the document so the CLI and a running server see each other's writes.
type Store struct {
	mu     sync.Mutex
	store  *store.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates a target store on top of the document store.
func NewStore(s *store.Store) *Store {
	return &Store{
		store:  s,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetClock overrides the clock used for updated_at (tests).
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// load must be called with mu held.
func (s *Store) load(ctx context.Context) Document {
	doc := DefaultDocument()
	var stored Document
	found, err := s.store.LoadJSON(ctx, store.KeyCampaignTargets, &stored)
	if err != nil {
		s.logger.WarnContext(ctx, "target document unreadable, using defaults", "error", err)
		return doc
	}
	if !found {
		return doc
	}
	if stored.Defaults != nil {
		doc.Defaults = stored.Defaults
	}
	if stored.Campaigns != nil {
		doc.Campaigns = stored.Campaigns
	}
	return doc
}

func (s *Store) save(ctx context.Context, doc Document) error {
	if err := s.store.SaveJSON(ctx, store.KeyCampaignTargets, doc); err != nil {
		return apperrors.PersistenceFailed(store.KeyCampaignTargets, err)
	}
	return nil
}

// Get returns the campaign-specific targets when present, else the default
// set of campaignType, else an empty set. The result is a copy.
func (s *Store) Get(ctx context.Context, campaignID, campaignType string) TargetSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(ctx)
	if entry, ok := doc.Campaigns[campaignID]; ok {
		return entry.Targets.Clone()
	}
	return doc.Defaults[campaignType].Clone()
}

// SetCampaignTargets replaces the campaign-specific targets.
func (s *Store) SetCampaignTargets(ctx context.Context, campaignID, name string, targets TargetSet) error {
	if campaignID == "" {
		return apperrors.InvalidArgument("campaign id is required")
	}
	if err := validate(targets); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(ctx)
	doc.Campaigns[campaignID] = CampaignTargets{
		Name:      name,
		Targets:   targets.Clone(),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.save(ctx, doc); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "campaign targets updated", "campaign_id", campaignID, "name", name, "targets", targets)
	return nil
}

// SetDefaultTargets replaces the default set of a campaign type.
func (s *Store) SetDefaultTargets(ctx context.Context, campaignType string, targets TargetSet) error {
	if campaignType != TypeTraffic && campaignType != TypeSales {
		return apperrors.InvalidArgument(fmt.Sprintf("unknown campaign type %q", campaignType))
	}
	if err := validate(targets); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(ctx)
	doc.Defaults[campaignType] = targets.Clone()
	if err := s.save(ctx, doc); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "default targets updated", "type", campaignType, "targets", targets)
	return nil
}

// Remove drops the campaign-specific entry so the campaign falls back to its
// type default. It reports whether an entry existed.
func (s *Store) Remove(ctx context.Context, campaignID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(ctx)
	if _, ok := doc.Campaigns[campaignID]; !ok {
		return false, nil
	}
	delete(doc.Campaigns, campaignID)
	if err := s.save(ctx, doc); err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "campaign targets removed", "campaign_id", campaignID)
	return true, nil
}

// Defaults returns a copy of the default sets keyed by campaign type.
func (s *Store) Defaults(ctx context.Context) map[string]TargetSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]TargetSet)
	for k, v := range s.load(ctx).Defaults {
		out[k] = v.Clone()
	}
	return out
}

// Campaigns returns a copy of every campaign-specific entry.
func (s *Store) Campaigns(ctx context.Context) map[string]CampaignTargets {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]CampaignTargets)
	for k, v := range s.load(ctx).Campaigns {
		v.Targets = v.Targets.Clone()
		out[k] = v
	}
	return out
}

func validate(targets TargetSet) error {
	names := make([]string, 0, len(targets))
	for k := range targets {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if !knownTargets[k] {
			return apperrors.InvalidArgument(fmt.Sprintf("unknown target %q", k))
		}
		if targets[k] < 0 {
			return apperrors.InvalidArgument(fmt.Sprintf("target %s must not be negative", k))
		}
	}
	return nil
}
