package server

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/adpilot/internal/observability"
	"github.com/hrygo/adpilot/internal/profile"
	"github.com/hrygo/adpilot/plugin/ai"
	"github.com/hrygo/adpilot/plugin/meta"
	"github.com/hrygo/adpilot/plugin/notify"
	"github.com/hrygo/adpilot/server/scheduler"
	"github.com/hrygo/adpilot/server/service/action"
	"github.com/hrygo/adpilot/server/service/judgment"
	"github.com/hrygo/adpilot/server/service/learning"
	"github.com/hrygo/adpilot/server/service/monitor"
	"github.com/hrygo/adpilot/server/service/recommend"
	"github.com/hrygo/adpilot/server/service/target"
	"github.com/hrygo/adpilot/store"
)

// Components is the wired monitoring pipeline. Platform is nil when no Meta
// access token is configured.
type Components struct {
	Platform  *meta.Client
	Targets   *target.Store
	Learner   *learning.Learner
	Executor  *action.Executor
	Requester *recommend.Requester
	Monitor   *monitor.Monitor
	Notifier  *notify.Dispatcher
	Scheduler *scheduler.Scheduler
	Metrics   *observability.Metrics
}

// NewComponents builds every component from the profile. A missing Meta
// token or LLM key disables that collaborator instead of failing.
func NewComponents(p *profile.Profile, st *store.Store, logger *slog.Logger, metrics *observability.Metrics) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc := p.Location()
	c := &Components{Metrics: metrics}

	var (
		platform     monitor.AdPlatform
		execPlatform action.Platform
		source       learning.SnapshotSource
	)
	if p.IsMetaEnabled() {
		c.Platform = meta.NewClient(meta.NewConfigFromProfile(p))
		c.Platform.SetLogger(logger)
		platform, execPlatform, source = c.Platform, c.Platform, c.Platform
	} else {
		logger.Warn("Meta access token not configured, monitoring runs will report the account as disconnected")
	}

	c.Targets = target.NewStore(st)
	c.Targets.SetLogger(logger)

	c.Learner = learning.NewLearner(st, source, learning.Config{Delay: p.LearningDelay, Location: loc})
	c.Learner.SetLogger(logger)
	c.Learner.SetMetrics(metrics)

	queue := action.NewQueue(st)
	queue.SetLogger(logger)
	executor, err := action.NewExecutor(queue, execPlatform, c.Learner, action.NewConfigFromProfile(p))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create executor")
	}
	executor.SetLogger(logger)
	executor.SetMetrics(metrics)
	c.Executor = executor

	var llm recommend.LLM
	if p.IsLLMEnabled() {
		provider, err := ai.NewProvider(ai.NewConfigFromProfile(p))
		if err != nil {
			logger.Warn("LLM provider disabled", "provider", p.LLMProvider, "error", err)
		} else {
			provider.SetLogger(logger)
			llm = provider
		}
	}
	c.Requester = recommend.NewRequester(llm, recommend.Config{Location: loc})
	c.Requester.SetLogger(logger)
	c.Requester.SetMetrics(metrics)

	engine := judgment.NewEngine(judgment.Config{MinDailySpend: p.MinDailySpend, Location: loc})
	engine.SetMetrics(metrics)

	c.Monitor = monitor.New(monitor.Deps{
		Platform:    platform,
		Targets:     c.Targets,
		Engine:      engine,
		Recommender: c.Requester,
		Actions:     c.Executor,
		Learner:     c.Learner,
	}, monitor.Config{Accounts: p.MetaAccountIDs, Location: loc})
	c.Monitor.SetLogger(logger)
	c.Monitor.SetMetrics(metrics)

	c.Notifier = notify.NewDispatcher(notify.LevelInfo)
	c.Notifier.SetLogger(logger)
	if p.SlackWebhookURL != "" {
		slack := notify.NewSlack(notify.SlackConfig{WebhookURL: p.SlackWebhookURL})
		slack.SetLogger(logger)
		c.Notifier.Register(slack)
	} else {
		c.Notifier.Register(notify.NewLogNotifier(logger))
	}

	c.Scheduler, err = scheduler.New(c.Monitor, c.Notifier, scheduler.Config{
		CheckInterval:     p.CheckInterval,
		DailyReportHour:   p.DailyReportHour,
		DailyReportMinute: p.DailyReportMinute,
		Location:          loc,
		NotifyHourly:      p.NotifyHourlyAlerts,
		NotifyDaily:       p.NotifyDailyReport,
		SeverityThreshold: p.NotifySeverityMinimum,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scheduler")
	}
	c.Scheduler.SetLogger(logger)
	return c, nil
}
