package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// LogFieldRunID is the field name for the monitoring run ID.
	LogFieldRunID = "run_id"
	// LogFieldTrigger is the field name for what started the run (hourly, daily_report, manual).
	LogFieldTrigger = "trigger"
	// LogFieldAccountID is the field name for the ad account ID.
	LogFieldAccountID = "account_id"
	// LogFieldCampaignID is the field name for the campaign ID.
	LogFieldCampaignID = "campaign_id"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
	// LogFieldErrorCode is the field name for error code.
	LogFieldErrorCode = "error_code"
)

// NewLogger builds the process logger from the profile's format and level strings.
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// RunContext represents one monitoring pass with structured logging.
type RunContext struct {
	RunID     string
	Trigger   string
	StartTime time.Time
	Logger    *slog.Logger
}

// NewRunContext creates a new run context with a generated run ID.
func NewRunContext(logger *slog.Logger, trigger string) *RunContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunContext{
		RunID:     uuid.New().String(),
		Trigger:   trigger,
		StartTime: time.Now(),
		Logger:    logger,
	}
}

// WithFields returns a new logger with the run attributes plus the given ones.
func (r *RunContext) WithFields(attrs ...slog.Attr) *slog.Logger {
	combined := r.baseAttrsAppended(attrs...)
	args := make([]any, 0, len(combined))
	for _, attr := range combined {
		args = append(args, attr)
	}
	return r.Logger.With(args...)
}

// Info logs an info message.
func (r *RunContext) Info(msg string, attrs ...slog.Attr) {
	r.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, r.baseAttrsAppended(attrs...)...)
}

// Warn logs a warning message.
func (r *RunContext) Warn(msg string, attrs ...slog.Attr) {
	r.Logger.LogAttrs(context.Background(), slog.LevelWarn, msg, r.baseAttrsAppended(attrs...)...)
}

// Error logs an error message with the error.
func (r *RunContext) Error(msg string, err error, attrs ...slog.Attr) {
	allAttrs := append(attrs, slog.String("error", err.Error()))
	r.Logger.LogAttrs(context.Background(), slog.LevelError, msg, r.baseAttrsAppended(allAttrs...)...)
}

// Duration returns the elapsed time since the run started.
func (r *RunContext) Duration() time.Duration {
	return time.Since(r.StartTime)
}

func (r *RunContext) baseAttrsAppended(attrs ...slog.Attr) []slog.Attr {
	base := []slog.Attr{
		slog.String(LogFieldRunID, r.RunID),
		slog.String(LogFieldTrigger, r.Trigger),
	}
	return append(base, attrs...)
}

type ctxKey struct{}

// WithRunContext adds the run context to the context.
func WithRunContext(ctx context.Context, run *RunContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, run)
}

// FromContext extracts the run context from the context.
func FromContext(ctx context.Context) (*RunContext, bool) {
	run, ok := ctx.Value(ctxKey{}).(*RunContext)
	return run, ok
}

// LoggerFrom returns the run-scoped logger if present, otherwise the fallback.
func LoggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if run, ok := FromContext(ctx); ok {
		return run.WithFields()
	}
	if fallback == nil {
		return slog.Default()
	}
	return fallback
}
