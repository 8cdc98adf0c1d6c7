// Package scheduler triggers the hourly check and the daily report.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/hrygo/adpilot/plugin/notify"
	"github.com/hrygo/adpilot/server/service/monitor"
	"github.com/hrygo/adpilot/server/timezone"
)

// Runner executes one monitoring pass.
type Runner interface {
	Run(ctx context.Context, trigger string) (*monitor.RunResult, error)
}

// Config holds the schedule and notification settings.
type Config struct {
	CheckInterval     time.Duration
	DailyReportHour   int
	DailyReportMinute int
	Location          *time.Location

	NotifyHourly      bool
	NotifyDaily       bool
	SeverityThreshold string
}

// DefaultConfig returns hourly checks and a 09:00 report in Asia/Tokyo.
func DefaultConfig() Config {
	return Config{
		CheckInterval:     time.Hour,
		DailyReportHour:   9,
		Location:          timezone.LocationAsiaTokyo,
		NotifyHourly:      true,
		NotifyDaily:       true,
		SeverityThreshold: "medium",
	}
}

// Status describes the scheduler for the operator API.
type Status struct {
	Running       bool      `json:"running"`
	CheckInterval string    `json:"check_interval"`
	DailyReportAt string    `json:"daily_report_at"`
	Timezone      string    `json:"timezone"`
	NextCheck     time.Time `json:"next_check,omitempty"`
	NextReport    time.Time `json:"next_report,omitempty"`
}

// Scheduler runs monitoring passes on a cron schedule. Scheduled and manual
// passes are serialized.
type Scheduler struct {
	runner   Runner
	notifier notify.Notifier
	config   Config
	logger   *slog.Logger
	now      func() time.Time

	runMu sync.Mutex

	mu       sync.Mutex
	cron     *cron.Cron
	hourlyID cron.EntryID
	dailyID  cron.EntryID
	cancel   context.CancelFunc
}

// New creates a scheduler. notifier may be nil.
func New(runner Runner, notifier notify.Notifier, cfg Config) (*Scheduler, error) {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = timezone.LocationAsiaTokyo
	}
	if cfg.SeverityThreshold == "" {
		cfg.SeverityThreshold = "medium"
	}
	if cfg.DailyReportHour < 0 || cfg.DailyReportHour > 23 {
		return nil, errors.Errorf("invalid daily report hour: %d", cfg.DailyReportHour)
	}
	if cfg.DailyReportMinute < 0 || cfg.DailyReportMinute > 59 {
		return nil, errors.Errorf("invalid daily report minute: %d", cfg.DailyReportMinute)
	}
	return &Scheduler{
		runner:   runner,
		notifier: notifier,
		config:   cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}, nil
}

// SetLogger sets a custom logger.
func (s *Scheduler) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Start registers the two jobs and starts the cron loop. Jobs run with a
// context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already running")
	}

	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithLocation(s.config.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	jobCtx, cancel := context.WithCancel(ctx)

	hourlyID, err := c.AddFunc(fmt.Sprintf("@every %s", s.config.CheckInterval), func() {
		if _, err := s.Hourly(jobCtx); err != nil {
			s.logger.Error("hourly check failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return errors.Wrap(err, "failed to register hourly check")
	}
	spec := fmt.Sprintf("%d %d * * *", s.config.DailyReportMinute, s.config.DailyReportHour)
	dailyID, err := c.AddFunc(spec, func() {
		if _, err := s.DailyReport(jobCtx); err != nil {
			s.logger.Error("daily report failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return errors.Wrap(err, "failed to register daily report")
	}

	c.Start()
	s.cron, s.hourlyID, s.dailyID, s.cancel = c, hourlyID, dailyID, cancel
	s.logger.Info("scheduler started",
		"check_interval", s.config.CheckInterval,
		"daily_report", spec,
		"timezone", s.config.Location.String())
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	cancel()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the cron loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// Status returns the schedule and the next trigger times.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:       s.cron != nil,
		CheckInterval: s.config.CheckInterval.String(),
		DailyReportAt: fmt.Sprintf("%02d:%02d", s.config.DailyReportHour, s.config.DailyReportMinute),
		Timezone:      s.config.Location.String(),
	}
	if s.cron != nil {
		st.NextCheck = s.cron.Entry(s.hourlyID).Next
		st.NextReport = s.cron.Entry(s.dailyID).Next
	}
	return st
}

func (s *Scheduler) runLocked(ctx context.Context, trigger string) (*monitor.RunResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.runner.Run(ctx, trigger)
}

// RunNow runs a manual pass and sends every high-severity alert at once.
func (s *Scheduler) RunNow(ctx context.Context) (*monitor.RunResult, error) {
	res, err := s.runLocked(ctx, monitor.TriggerManual)
	if err != nil {
		return nil, err
	}
	now := s.now().In(s.config.Location)
	for _, a := range monitor.FilterAlerts(res.Alerts, "high") {
		s.send(ctx, monitor.AlertMessage(a, now))
	}
	return res, nil
}

// Hourly runs the periodic check and sends a summary of the alerts at or
// above the severity threshold.
func (s *Scheduler) Hourly(ctx context.Context) (*monitor.RunResult, error) {
	res, err := s.runLocked(ctx, monitor.TriggerHourly)
	if err != nil {
		return nil, err
	}
	if !s.config.NotifyHourly || len(res.Alerts) == 0 {
		return res, nil
	}

	filtered := monitor.FilterAlerts(res.Alerts, s.config.SeverityThreshold)
	msg, ok := monitor.AlertSummary(filtered, s.now().In(s.config.Location))
	if !ok {
		s.logger.InfoContext(ctx, "alerts below threshold, notification skipped",
			"alerts", len(res.Alerts),
			"threshold", s.config.SeverityThreshold)
		return res, nil
	}
	s.send(ctx, msg)
	return res, nil
}

// DailyReport runs a pass and sends the daily report.
func (s *Scheduler) DailyReport(ctx context.Context) (*monitor.RunResult, error) {
	res, err := s.runLocked(ctx, monitor.TriggerDailyReport)
	if err != nil {
		return nil, err
	}
	if s.config.NotifyDaily {
		s.send(ctx, monitor.DailyReport(res, s.now().In(s.config.Location)))
	} else {
		s.logger.InfoContext(ctx, "daily report notification disabled")
	}
	return res, nil
}

func (s *Scheduler) send(ctx context.Context, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "notification failed", "error", err)
	}
}

// cronLogger routes cron's logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
