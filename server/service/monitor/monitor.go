// Package monitor runs monitoring passes: it fetches campaign performance,
// judges every campaign, asks for recommendations and hands the resulting
// actions to the executor.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/adpilot/internal/observability"
	"github.com/hrygo/adpilot/plugin/meta"
	"github.com/hrygo/adpilot/server/service/action"
	"github.com/hrygo/adpilot/server/service/insight"
	"github.com/hrygo/adpilot/server/service/judgment"
	"github.com/hrygo/adpilot/server/service/learning"
	"github.com/hrygo/adpilot/server/service/objective"
	"github.com/hrygo/adpilot/server/service/recommend"
	"github.com/hrygo/adpilot/server/service/target"
	"github.com/hrygo/adpilot/server/timezone"
)

// Triggers.
const (
	TriggerHourly      = "hourly"
	TriggerDailyReport = "daily_report"
	TriggerManual      = "manual"
)

// AdPlatform reads campaigns and insights.
type AdPlatform interface {
	GetCampaigns(ctx context.Context, accountID string, statusFilter []string) ([]meta.Campaign, error)
	GetInsights(ctx context.Context, accountID string, level meta.Level, preset meta.DatePreset, ids []string) ([]insight.RawInsight, error)
}

// TargetSource resolves the targets of a campaign.
type TargetSource interface {
	Get(ctx context.Context, campaignID, campaignType string) target.TargetSet
}

// Recommender requests recommendations.
type Recommender interface {
	Request(ctx context.Context, in recommend.Input) recommend.Outcome
}

// ActionSink receives actions derived from recommendations.
type ActionSink interface {
	Submit(ctx context.Context, a action.Action) (action.Submission, error)
	Pending(ctx context.Context) []action.Record
}

// Learner analyzes executed actions and summarizes past effects.
type Learner interface {
	AnalyzePending(ctx context.Context) ([]learning.Record, error)
	Context(ctx context.Context) string
}

// Deps are the collaborators of a monitor. Platform, Recommender, Actions
// and Learner may be nil.
type Deps struct {
	Platform    AdPlatform
	Targets     TargetSource
	Engine      *judgment.Engine
	Recommender Recommender
	Actions     ActionSink
	Learner     Learner
}

// Config holds monitor settings.
type Config struct {
	Accounts []string
	Location *time.Location
	// Concurrency bounds the parallel insight fetches of one account.
	Concurrency int
}

// Monitor runs monitoring passes.
type Monitor struct {
	deps    Deps
	config  Config
	now     func() time.Time
	metrics *observability.Metrics
	logger  *slog.Logger

	mu   sync.RWMutex
	last *RunResult
}

// New creates a monitor.
func New(deps Deps, cfg Config) *Monitor {
	if cfg.Location == nil {
		cfg.Location = timezone.LocationAsiaTokyo
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = len(insight.AllPeriods)
	}
	if deps.Engine == nil {
		deps.Engine = judgment.NewEngine(judgment.DefaultConfig())
	}
	return &Monitor{
		deps:   deps,
		config: cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (m *Monitor) SetLogger(logger *slog.Logger) {
	m.logger = logger
}

// SetMetrics attaches Prometheus collectors.
func (m *Monitor) SetMetrics(metrics *observability.Metrics) {
	m.metrics = metrics
}

// SetClock overrides the clock (tests).
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Accounts returns the configured account ids.
func (m *Monitor) Accounts() []string {
	return m.config.Accounts
}

// Last returns the result of the latest completed run, or nil.
func (m *Monitor) Last() *RunResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Run analyzes due learnings and then checks every configured account in
// turn. Account failures are recorded on the account result; Run itself
// only fails when ctx is canceled.
func (m *Monitor) Run(ctx context.Context, trigger string) (*RunResult, error) {
	run := observability.NewRunContext(m.logger, trigger)
	ctx = observability.WithRunContext(ctx, run)
	run.Info("monitoring run started", slog.Int("accounts", len(m.config.Accounts)))

	result := &RunResult{
		RunID:         run.RunID,
		Trigger:       trigger,
		CheckedAt:     m.now().UTC(),
		Accounts:      make(map[string]*AccountResult, len(m.config.Accounts)),
		Alerts:        []Alert{},
		Opportunities: []Opportunity{},
	}

	if m.deps.Learner != nil {
		learned, err := m.deps.Learner.AnalyzePending(ctx)
		if err != nil {
			run.Error("learning analysis failed", err)
		}
		result.Learned = len(learned)
	}

	for _, accountID := range m.config.Accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acc := m.CheckAccount(ctx, accountID)
		result.Accounts[accountID] = acc
		result.AccountOrder = append(result.AccountOrder, accountID)
		result.Alerts = append(result.Alerts, acc.Alerts...)
		result.Opportunities = append(result.Opportunities, acc.Opportunities...)
	}

	result.Summary = Summarize(result.Alerts, result.Opportunities, len(result.Accounts))
	result.Duration = run.Duration()
	m.metrics.RecordRun(trigger, string(result.Summary.Status), result.Duration)
	run.Info("monitoring run finished",
		slog.String("status", string(result.Summary.Status)),
		slog.Int("alerts", result.Summary.TotalAlerts),
		slog.Int("opportunities", result.Summary.TotalOpportunities),
		slog.Int64(observability.LogFieldDuration, result.Duration.Milliseconds()))

	m.mu.Lock()
	m.last = result
	m.mu.Unlock()
	return result, nil
}

// CheckAccount judges the active campaigns of one account.
func (m *Monitor) CheckAccount(ctx context.Context, accountID string) *AccountResult {
	logger := observability.LoggerFrom(ctx, m.logger).With(observability.LogFieldAccountID, accountID)
	result := &AccountResult{
		AccountID:       accountID,
		CheckedAt:       m.now().UTC(),
		Campaigns:       []CampaignResult{},
		Alerts:          []Alert{},
		Opportunities:   []Opportunity{},
		Recommendations: []recommend.Recommendation{},
	}
	if m.deps.Platform == nil {
		result.Error = "Meta API未接続"
		return result
	}

	campaigns, err := m.deps.Platform.GetCampaigns(ctx, accountID, []string{string(meta.StatusActive)})
	if err != nil {
		logger.ErrorContext(ctx, "failed to list campaigns", "error", err)
		result.Error = err.Error()
		return result
	}
	if len(campaigns) == 0 {
		return result
	}

	periods := m.fetchPeriods(ctx, logger, accountID, campaigns)
	for _, c := range campaigns {
		cr := m.analyze(ctx, c, periods[c.ID])
		if cr.Judgment.Status == judgment.StatusInsufficientData {
			logger.DebugContext(ctx, "campaign skipped",
				observability.LogFieldCampaignID, c.ID,
				"reason", cr.Judgment.SkipReason)
			continue
		}
		result.Campaigns = append(result.Campaigns, cr)

		switch cr.Judgment.Status {
		case judgment.StatusCritical:
			result.Alerts = append(result.Alerts, newAlert(accountID, cr))
		case judgment.StatusOpportunity:
			result.Opportunities = append(result.Opportunities, newOpportunity(accountID, cr))
		}
	}

	if len(result.Alerts) > 0 || len(result.Opportunities) > 0 {
		m.recommend(ctx, logger, result)
	}
	return result
}

// fetchPeriods loads the four reporting windows for every campaign, one
// insights query per window. A failed window stays empty.
func (m *Monitor) fetchPeriods(ctx context.Context, logger *slog.Logger, accountID string, campaigns []meta.Campaign) map[string]*insight.Periods {
	ids := make([]string, 0, len(campaigns))
	out := make(map[string]*insight.Periods, len(campaigns))
	for _, c := range campaigns {
		ids = append(ids, c.ID)
		out[c.ID] = &insight.Periods{}
	}

	rows := make([][]insight.RawInsight, len(insight.AllPeriods))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.Concurrency)
	for i, period := range insight.AllPeriods {
		g.Go(func() error {
			records, err := m.deps.Platform.GetInsights(gctx, accountID, meta.LevelCampaign, meta.PresetFor(period), ids)
			if err != nil {
				logger.WarnContext(gctx, "failed to fetch insights", "period", period, "error", err)
				return nil
			}
			rows[i] = records
			return nil
		})
	}
	_ = g.Wait()

	for i, period := range insight.AllPeriods {
		byCampaign := make(map[string][]insight.RawInsight)
		for _, r := range rows[i] {
			byCampaign[r.CampaignID] = append(byCampaign[r.CampaignID], r)
		}
		for id, p := range out {
			if records := byCampaign[id]; len(records) > 0 {
				p.Set(period, insight.Build(period, records))
			}
		}
	}
	return out
}

func (m *Monitor) analyze(ctx context.Context, c meta.Campaign, periods *insight.Periods) CampaignResult {
	profile := judgment.CampaignProfile{
		ID:              c.ID,
		Name:            c.Name,
		Objective:       c.Objective,
		Status:          c.EffectiveStatus,
		IsAdvantagePlus: c.IsAdvantagePlus(),
		DailyBudget:     c.DailyBudget,
	}
	if periods != nil {
		profile.Periods = *periods
	}

	kpi := objective.Classify(c.Objective, profile.IsAdvantagePlus)
	var targets target.TargetSet
	if m.deps.Targets != nil {
		targets = m.deps.Targets.Get(ctx, c.ID, kpi.CampaignType())
	}

	cr := CampaignResult{
		CampaignProfile:  profile,
		ObjectiveDisplay: kpi.DisplayName,
		KPI:              kpi,
		Judgment:         m.deps.Engine.Judge(profile, kpi, targets),
	}
	if profile.IsAdvantagePlus {
		cr.SpecialNotes = kpi.SpecialNotes
	}
	return cr
}

func (m *Monitor) recommend(ctx context.Context, logger *slog.Logger, result *AccountResult) {
	if m.deps.Recommender == nil {
		return
	}

	in := recommend.Input{Now: m.now()}
	for _, c := range result.Campaigns {
		in.Campaigns = append(in.Campaigns, recommend.CampaignResult{
			Profile:  c.CampaignProfile,
			KPI:      c.KPI,
			Judgment: c.Judgment,
		})
	}
	in.Alerts, in.Opportunities = toHighlights(result.Alerts, result.Opportunities)
	if m.deps.Learner != nil {
		in.LearningContext = m.deps.Learner.Context(ctx)
	}

	out := m.deps.Recommender.Request(ctx, in)
	result.Recommendations = out.Recommendations
	result.RecommendationStatus = out.Status
	if m.deps.Actions == nil {
		return
	}

	byID := make(map[string]judgment.CampaignProfile, len(result.Campaigns))
	for _, c := range result.Campaigns {
		byID[c.ID] = c.CampaignProfile
	}
	for _, rec := range out.Recommendations {
		a, ok := recommend.ToAction(rec, byID[rec.CampaignID], result.AccountID)
		if !ok {
			continue
		}
		result.Actions = append(result.Actions, m.submit(ctx, logger, a))
	}
}

// submit hands a to the executor unless an action of the same type is
// already pending for the campaign.
func (m *Monitor) submit(ctx context.Context, logger *slog.Logger, a action.Action) SubmittedAction {
	for _, p := range m.deps.Actions.Pending(ctx) {
		if p.Action.CampaignID == a.CampaignID && p.Action.Type == a.Type {
			return SubmittedAction{Action: a, ID: p.ID, Skipped: "同じアクションが承認待ちです"}
		}
	}

	sub, err := m.deps.Actions.Submit(ctx, a)
	if err != nil {
		logger.ErrorContext(ctx, "failed to submit recommended action",
			observability.LogFieldCampaignID, a.CampaignID,
			"type", a.Type,
			"error", err)
		return SubmittedAction{Action: a, Error: err.Error()}
	}
	return SubmittedAction{Action: a, ID: sub.ID, Result: sub.Result}
}
