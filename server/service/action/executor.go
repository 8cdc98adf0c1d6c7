package action

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	apperrors "github.com/hrygo/adpilot/internal/errors"
	"github.com/hrygo/adpilot/internal/format"
	"github.com/hrygo/adpilot/internal/observability"
	"github.com/hrygo/adpilot/internal/profile"
	"github.com/hrygo/adpilot/plugin/meta"
	"github.com/hrygo/adpilot/server/service/insight"
)

// Platform is the ad-platform surface the executor mutates and reads the
// baseline from.
type Platform interface {
	UpdateBudget(ctx context.Context, campaignID string, dailyBudget float64) error
	UpdateStatus(ctx context.Context, campaignID string, status meta.Status) error
	CampaignSnapshot(ctx context.Context, accountID, campaignID string, period insight.Period) (insight.Snapshot, error)
}

// BaselineRecorder receives the pre-mutation metrics of an executed action.
type BaselineRecorder interface {
	RecordBaseline(ctx context.Context, a Action, baseline insight.Snapshot) (string, error)
}

// Config holds the execution mode and safety bounds.
type Config struct {
	Mode Mode
	// MaxIncreasePercent caps a single budget increase.
	MaxIncreasePercent float64
	// MaxDailyBudget caps the resulting daily budget of an increase.
	MaxDailyBudget float64
	// Guards are CEL expressions evaluated after the fixed bounds.
	Guards []string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeApprovalRequired,
		MaxIncreasePercent: 20,
		MaxDailyBudget:     500000,
	}
}

// NewConfigFromProfile creates executor config from profile.
func NewConfigFromProfile(p *profile.Profile) Config {
	cfg := DefaultConfig()
	if p.ExecutorMode != "" {
		cfg.Mode = Mode(p.ExecutorMode)
	}
	if p.MaxBudgetIncreasePercent > 0 {
		cfg.MaxIncreasePercent = p.MaxBudgetIncreasePercent
	}
	if p.MaxDailyBudget > 0 {
		cfg.MaxDailyBudget = p.MaxDailyBudget
	}
	cfg.Guards = p.GuardExpressions
	return cfg
}

// Executor applies actions to the ad platform.
type Executor struct {
	queue    *Queue
	platform Platform
	learner  BaselineRecorder
	guards   []guard
	config   Config
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewExecutor creates an executor. platform and learner may be nil: without a
// platform every mutation fails, without a learner no baseline is recorded.
func NewExecutor(queue *Queue, platform Platform, learner BaselineRecorder, cfg Config) (*Executor, error) {
	def := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	switch cfg.Mode {
	case ModeNotifyOnly, ModeApprovalRequired, ModeAutoExecute:
	default:
		return nil, apperrors.InvalidArgument("unknown executor mode: " + string(cfg.Mode))
	}
	if cfg.MaxIncreasePercent <= 0 {
		cfg.MaxIncreasePercent = def.MaxIncreasePercent
	}
	if cfg.MaxDailyBudget <= 0 {
		cfg.MaxDailyBudget = def.MaxDailyBudget
	}

	guards, err := compileGuards(cfg.Guards)
	if err != nil {
		return nil, err
	}

	return &Executor{
		queue:    queue,
		platform: platform,
		learner:  learner,
		guards:   guards,
		config:   cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}, nil
}

// SetLogger sets a custom logger.
func (e *Executor) SetLogger(logger *slog.Logger) {
	e.logger = logger
}

// SetMetrics attaches Prometheus collectors.
func (e *Executor) SetMetrics(m *observability.Metrics) {
	e.metrics = m
}

// Mode returns the configured execution mode.
func (e *Executor) Mode() Mode {
	return e.config.Mode
}

// Queue returns the underlying action queue.
func (e *Executor) Queue() *Queue {
	return e.queue
}

// SafetyCheck returns the refusal reason for a, or "" when it may run.
// The fixed bounds apply to every budget action that raises the budget,
// whatever its type; guards apply to every type.
func (e *Executor) SafetyCheck(a Action) string {
	if a.Type.IsBudget() {
		if reason := e.budgetCheck(a.Type, a.Params); reason != "" {
			return reason
		}
	}
	for _, g := range e.guards {
		if reason := g.check(a); reason != "" {
			return reason
		}
	}
	return ""
}

// budgetCheck bounds budget raises. A budget whose current value is unknown
// is treated as a raise.
func (e *Executor) budgetCheck(t Type, p Params) string {
	if t == TypeBudgetDecrease && p.CurrentBudget > 0 && p.NewBudget > p.CurrentBudget {
		return fmt.Sprintf("減額アクションの新予算%sが現在の予算%sを上回っています",
			format.Yen(p.NewBudget), format.Yen(p.CurrentBudget))
	}
	if t != TypeBudgetIncrease && p.CurrentBudget > 0 && p.NewBudget <= p.CurrentBudget {
		return ""
	}
	if pct := p.EffectiveIncreasePercent(); pct > e.config.MaxIncreasePercent {
		return fmt.Sprintf("増額率%s%%は上限%s%%を超えています",
			format.Number(roundPercent(pct)), format.Number(e.config.MaxIncreasePercent))
	}
	if p.NewBudget > e.config.MaxDailyBudget {
		return fmt.Sprintf("新予算%sは上限%sを超えています",
			format.Yen(p.NewBudget), format.Yen(e.config.MaxDailyBudget))
	}
	return ""
}

// Execute runs a without touching the queue. Safety checks run in every
// mode; in notify_only mode an action that passes them is not executed.
func (e *Executor) Execute(ctx context.Context, a Action) Result {
	if e.config.Mode == ModeNotifyOnly {
		if reason := e.SafetyCheck(a); reason != "" {
			return e.refuse(ctx, a, reason)
		}
		e.metrics.RecordAction(string(a.Type), "skipped")
		return Result{
			Success:  true,
			Executed: false,
			Mode:     ModeNotifyOnly,
			Message:  "通知モードのため実行はスキップ",
		}
	}
	return e.run(ctx, a)
}

// run checks safety and dispatches a regardless of mode.
func (e *Executor) run(ctx context.Context, a Action) Result {
	if reason := e.SafetyCheck(a); reason != "" {
		return e.refuse(ctx, a, reason)
	}

	var res Result
	switch a.Type {
	case TypeBudgetIncrease, TypeBudgetChange, TypeBudgetDecrease:
		res = e.changeBudget(ctx, a)
	case TypeStatusChange:
		status := a.Params.NewStatus
		if status == "" {
			status = meta.StatusPaused
		}
		res = e.changeStatus(ctx, a, status)
	case TypePause:
		res = e.changeStatus(ctx, a, meta.StatusPaused)
	case TypeResume:
		res = e.changeStatus(ctx, a, meta.StatusActive)
	default:
		res = Result{Message: fmt.Sprintf("未対応のアクションタイプ: %s", a.Type)}
	}
	res.Mode = e.config.Mode

	outcome := "executed"
	if !res.Success {
		outcome = "failed"
	}
	e.metrics.RecordAction(string(a.Type), outcome)
	return res
}

func (e *Executor) refuse(ctx context.Context, a Action, reason string) Result {
	e.metrics.RecordRefusal(string(a.Type))
	e.logger.WarnContext(ctx, "action refused by safety check",
		"type", a.Type,
		"campaign_id", a.CampaignID,
		"reason", reason)
	return Result{
		Success:  false,
		Executed: false,
		Mode:     e.config.Mode,
		Message:  "安全チェック失敗: " + reason,
		Refusal:  reason,
	}
}

func (e *Executor) changeBudget(ctx context.Context, a Action) Result {
	if e.platform == nil {
		return Result{Message: "Meta API未接続"}
	}
	newBudget := a.Params.NewBudget
	if a.CampaignID == "" || newBudget <= 0 {
		return Result{Message: "campaign_idまたはnew_budgetが不足"}
	}

	baseline := e.captureBaseline(ctx, a)
	if err := e.platform.UpdateBudget(ctx, a.CampaignID, newBudget); err != nil {
		e.logger.ErrorContext(ctx, "budget update failed",
			"campaign_id", a.CampaignID,
			"new_budget", newBudget,
			"error", err)
		return Result{Message: "Meta APIからの予算更新に失敗しました", Error: err.Error()}
	}

	e.logger.InfoContext(ctx, "budget changed", "campaign_id", a.CampaignID, "new_budget", newBudget)
	return Result{
		Success:    true,
		Executed:   true,
		Message:    fmt.Sprintf("予算を%sに変更しました", format.Yen(newBudget)),
		LearningID: e.forwardBaseline(ctx, a, baseline),
	}
}

func (e *Executor) changeStatus(ctx context.Context, a Action, status meta.Status) Result {
	if e.platform == nil {
		return Result{Message: "Meta API未接続"}
	}
	if a.CampaignID == "" {
		return Result{Message: "campaign_idが不足"}
	}
	if !status.Valid() {
		return Result{Message: fmt.Sprintf("無効なステータス: %s", status)}
	}

	baseline := e.captureBaseline(ctx, a)
	if err := e.platform.UpdateStatus(ctx, a.CampaignID, status); err != nil {
		e.logger.ErrorContext(ctx, "status update failed",
			"campaign_id", a.CampaignID,
			"status", status,
			"error", err)
		return Result{Message: "Meta APIからのステータス更新に失敗しました", Error: err.Error()}
	}

	e.logger.InfoContext(ctx, "status changed", "campaign_id", a.CampaignID, "status", status)
	return Result{
		Success:    true,
		Executed:   true,
		Message:    fmt.Sprintf("ステータスを%sに変更しました", status),
		LearningID: e.forwardBaseline(ctx, a, baseline),
	}
}

// captureBaseline fetches the 7-day metrics before a mutation. Failure only
// costs the learning record.
func (e *Executor) captureBaseline(ctx context.Context, a Action) *insight.Snapshot {
	if e.learner == nil {
		return nil
	}
	snap, err := e.platform.CampaignSnapshot(ctx, a.AccountID, a.CampaignID, insight.PeriodLast7d)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to capture baseline", "campaign_id", a.CampaignID, "error", err)
		return nil
	}
	return &snap
}

func (e *Executor) forwardBaseline(ctx context.Context, a Action, baseline *insight.Snapshot) string {
	if e.learner == nil || baseline == nil {
		return ""
	}
	id, err := e.learner.RecordBaseline(ctx, a, *baseline)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to record baseline", "campaign_id", a.CampaignID, "error", err)
		return ""
	}
	return id
}

// Pending returns the actions waiting for approval.
func (e *Executor) Pending(ctx context.Context) []Record {
	return e.queue.Pending(ctx)
}

// Propose queues a for approval.
func (e *Executor) Propose(ctx context.Context, a Action) (string, error) {
	id, err := e.queue.Propose(ctx, a)
	if err != nil {
		return "", err
	}
	e.metrics.RecordAction(string(a.Type), "proposed")
	e.metrics.SetPendingActions(len(e.queue.Pending(ctx)))
	return id, nil
}

// ApproveAndExecute approves a pending action, executes it and records the
// result on its history entry.
func (e *Executor) ApproveAndExecute(ctx context.Context, id string) (Result, error) {
	rec, err := e.queue.Approve(ctx, id)
	if err != nil {
		return Result{}, err
	}
	e.metrics.RecordAction(string(rec.Action.Type), "approved")
	e.metrics.SetPendingActions(len(e.queue.Pending(ctx)))

	res := e.Execute(ctx, rec.Action)
	if err := e.queue.MarkExecuted(ctx, id, res); err != nil {
		return res, err
	}
	return res, nil
}

// Reject rejects a pending action. A rejected id can no longer be approved.
func (e *Executor) Reject(ctx context.Context, id, reason string) (Record, error) {
	rec, err := e.queue.Reject(ctx, id, reason)
	if err != nil {
		return Record{}, err
	}
	e.metrics.RecordAction(string(rec.Action.Type), "rejected")
	e.metrics.SetPendingActions(len(e.queue.Pending(ctx)))
	return rec, nil
}

// ExecuteDirect runs an operator action without the approval step. Safety
// checks still apply and the outcome is appended to the history.
func (e *Executor) ExecuteDirect(ctx context.Context, a Action) (Result, error) {
	if a.Source == "" {
		a.Source = SourceDirect
	}
	res := e.run(ctx, a)

	now := e.now().UTC()
	entry := Record{
		CreatedAt:  now,
		Status:     StatusExecuted,
		Action:     a,
		ExecutedAt: &now,
		Result:     &res,
		Kind:       KindDirectExecution,
	}
	if res.Refused() {
		entry.Status = StatusRejected
		entry.RejectedAt = &now
		entry.RejectReason = res.Message
	}
	if err := e.queue.AppendHistory(ctx, entry); err != nil {
		return res, err
	}
	return res, nil
}

// Submission is the outcome of Submit.
type Submission struct {
	ID     string  `json:"id,omitempty"`
	Result *Result `json:"result,omitempty"`
}

// Submit routes a new action by mode: auto_execute runs it directly,
// otherwise it is queued for approval.
func (e *Executor) Submit(ctx context.Context, a Action) (Submission, error) {
	if e.config.Mode != ModeAutoExecute {
		id, err := e.Propose(ctx, a)
		return Submission{ID: id}, err
	}
	res, err := e.ExecuteDirect(ctx, a)
	return Submission{Result: &res}, err
}

func roundPercent(v float64) float64 {
	return math.Round(v*10) / 10
}
