// Package learning measures the effect of executed actions and turns the
// history of effects into context for future recommendations.
package learning

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	apperrors "github.com/hrygo/adpilot/internal/errors"
	"github.com/hrygo/adpilot/internal/observability"
	"github.com/hrygo/adpilot/server/service/action"
	"github.com/hrygo/adpilot/server/service/insight"
	"github.com/hrygo/adpilot/server/timezone"
	"github.com/hrygo/adpilot/store"
)

// DefaultDelay is the wait between execution and analysis.
const DefaultDelay = 24 * time.Hour

// RecordStatus is the analysis state of a learning record.
type RecordStatus string

const (
	StatusPendingAnalysis RecordStatus = "pending_analysis"
	StatusAnalyzed        RecordStatus = "analyzed"
)

// Record links an executed action to its baseline and, once analyzed, to
// its measured effect.
type Record struct {
	ID           string        `json:"id"`
	Action       action.Action `json:"action"`
	CampaignID   string        `json:"campaign_id"`
	AccountID    string        `json:"account_id"`
	ExecutedAt   time.Time     `json:"executed_at"`
	AnalyzeAfter time.Time     `json:"analyze_after"`
	Baseline     Metrics       `json:"baseline"`
	Status       RecordStatus  `json:"status"`

	AnalyzedAt   *time.Time `json:"analyzed_at,omitempty"`
	After        *Metrics   `json:"after,omitempty"`
	Effect       Effect     `json:"effect,omitempty"`
	EffectDetail string     `json:"effect_detail,omitempty"`
	Confidence   float64    `json:"confidence,omitempty"`
}

// SnapshotSource provides the post-action metrics.
type SnapshotSource interface {
	CampaignSnapshot(ctx context.Context, accountID, campaignID string, period insight.Period) (insight.Snapshot, error)
}

// Config holds learner settings.
type Config struct {
	// Delay between execution and analysis. Default 24h.
	Delay time.Duration
	// Location used to render dates in prompts. Default Asia/Tokyo.
	Location *time.Location
}

// Learner keeps pending and analyzed learning records.
type Learner struct {
	mu      sync.Mutex
	store   *store.Store
	source  SnapshotSource
	config  Config
	now     func() time.Time
	newID   func() string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewLearner creates a learner. source may be nil, in which case records
// stay pending until a source is available.
func NewLearner(s *store.Store, source SnapshotSource, cfg Config) *Learner {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Location == nil {
		cfg.Location = timezone.LocationAsiaTokyo
	}
	return &Learner{
		store:  s,
		source: source,
		config: cfg,
		now:    time.Now,
		newID:  shortuuid.New,
		logger: slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (l *Learner) SetLogger(logger *slog.Logger) {
	l.logger = logger
}

// SetClock overrides the clock (tests).
func (l *Learner) SetClock(now func() time.Time) {
	l.now = now
}

// SetMetrics attaches Prometheus collectors.
func (l *Learner) SetMetrics(m *observability.Metrics) {
	l.metrics = m
}

func (l *Learner) loadPending(ctx context.Context) []Record {
	var records []Record
	l.store.LoadJSONOrDefault(ctx, store.KeyPendingAnalysis, &records)
	return records
}

func (l *Learner) loadLearnings(ctx context.Context) []Record {
	var records []Record
	l.store.LoadJSONOrDefault(ctx, store.KeyLearnings, &records)
	return records
}

func (l *Learner) savePending(ctx context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	if err := l.store.SaveJSON(ctx, store.KeyPendingAnalysis, records); err != nil {
		return apperrors.PersistenceFailed(store.KeyPendingAnalysis, err)
	}
	return nil
}

func (l *Learner) saveLearnings(ctx context.Context, records []Record) error {
	if err := l.store.SaveJSON(ctx, store.KeyLearnings, records); err != nil {
		return apperrors.PersistenceFailed(store.KeyLearnings, err)
	}
	return nil
}

// RecordBaseline stores the pre-execution metrics of a and schedules its
// analysis after the configured delay.
func (l *Learner) RecordBaseline(ctx context.Context, a action.Action, baseline insight.Snapshot) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	rec := Record{
		ID:           l.newID(),
		Action:       a,
		CampaignID:   a.CampaignID,
		AccountID:    a.AccountID,
		ExecutedAt:   now,
		AnalyzeAfter: now.Add(l.config.Delay),
		Baseline:     MetricsFrom(baseline),
		Status:       StatusPendingAnalysis,
	}
	pending := append(l.loadPending(ctx), rec)
	if err := l.savePending(ctx, pending); err != nil {
		return "", err
	}
	l.logger.InfoContext(ctx, "learning record created",
		"id", rec.ID,
		"type", a.Type,
		"campaign_id", a.CampaignID,
		"analyze_after", rec.AnalyzeAfter)
	return rec.ID, nil
}

// Pending returns the records waiting for analysis.
func (l *Learner) Pending(ctx context.Context) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadPending(ctx)
}

// Learnings returns every analyzed record, oldest first.
func (l *Learner) Learnings(ctx context.Context) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLearnings(ctx)
}

// AnalyzePending analyzes every pending record whose delay has elapsed and
// returns the newly analyzed ones. A record whose current metrics cannot be
// fetched stays pending for the next pass; only write failures are returned.
func (l *Learner) AnalyzePending(ctx context.Context) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pending := l.loadPending(ctx)
	if len(pending) == 0 {
		return nil, nil
	}
	if l.source == nil {
		l.logger.WarnContext(ctx, "no ad platform configured, skipping learning analysis", "pending", len(pending))
		return nil, nil
	}

	now := l.now().UTC()
	var analyzed, still []Record
	for _, rec := range pending {
		if now.Before(rec.AnalyzeAfter) {
			still = append(still, rec)
			continue
		}
		done, ok := l.analyze(ctx, rec, now)
		if !ok {
			still = append(still, rec)
			continue
		}
		analyzed = append(analyzed, done)
	}
	if len(analyzed) == 0 {
		return nil, nil
	}

	// Learnings are written before the pending list shrinks; a retried pass
	// skips ids that are already learned.
	learnings := l.loadLearnings(ctx)
	known := make(map[string]bool, len(learnings))
	for _, r := range learnings {
		known[r.ID] = true
	}
	for _, r := range analyzed {
		if !known[r.ID] {
			learnings = append(learnings, r)
		}
	}
	if err := l.saveLearnings(ctx, learnings); err != nil {
		return nil, err
	}
	if err := l.savePending(ctx, still); err != nil {
		return nil, err
	}
	return analyzed, nil
}

func (l *Learner) analyze(ctx context.Context, rec Record, now time.Time) (Record, bool) {
	snap, err := l.source.CampaignSnapshot(ctx, rec.AccountID, rec.CampaignID, insight.PeriodLast7d)
	if err != nil {
		l.logger.WarnContext(ctx, "learning analysis deferred",
			"id", rec.ID,
			"campaign_id", rec.CampaignID,
			"error", err)
		return Record{}, false
	}

	after := MetricsFrom(snap)
	verdict := DetermineEffect(rec.Action.Type, rec.Baseline, after)

	rec.Status = StatusAnalyzed
	rec.AnalyzedAt = &now
	rec.After = &after
	rec.Effect = verdict.Effect
	rec.EffectDetail = verdict.Detail
	rec.Confidence = verdict.Confidence

	l.metrics.RecordLearning(string(rec.Action.Type), string(verdict.Effect))
	l.logger.InfoContext(ctx, "learning analyzed",
		"id", rec.ID,
		"campaign_id", rec.CampaignID,
		"effect", verdict.Effect,
		"detail", verdict.Detail)
	return rec, true
}
