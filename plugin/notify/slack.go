package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// SlackConfig holds incoming-webhook settings.
type SlackConfig struct {
	WebhookURL    string
	Timeout       time.Duration
	RetryAttempts int
}

// Slack posts messages to a Slack incoming webhook.
type Slack struct {
	config     SlackConfig
	httpClient *http.Client
	logger     *slog.Logger
	backoff    func(attempt int) time.Duration
}

// NewSlack creates a Slack notifier.
func NewSlack(cfg SlackConfig) *Slack {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 2
	}
	return &Slack{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default(),
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * 500 * time.Millisecond
		},
	}
}

// SetLogger sets a custom logger.
func (s *Slack) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Notify posts msg. Client errors are not retried.
func (s *Slack) Notify(ctx context.Context, msg Message) error {
	if s.config.WebhookURL == "" {
		return errors.New("slack webhook url is not configured")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal slack payload")
	}

	var lastErr error
	for attempt := 0; attempt < s.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff(attempt)):
			}
		}

		retry, err := s.post(ctx, body)
		if err == nil {
			s.logger.DebugContext(ctx, "slack notification sent", "level", msg.Level)
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	s.logger.ErrorContext(ctx, "slack notification failed", "error", lastErr)
	return lastErr
}

func (s *Slack) post(ctx context.Context, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return false, errors.Wrap(err, "failed to create slack request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return true, errors.Wrap(err, "slack request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			errors.Errorf("slack returned status %d: %s", resp.StatusCode, respBody)
	}
	return false, nil
}

// Name returns the channel name.
func (s *Slack) Name() string {
	return "slack"
}

// LogNotifier writes messages to the log. It stands in when no chat
// channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs msg.
func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "notification", "level", msg.Level, "text", msg.Text, "blocks", len(msg.Blocks))
	return nil
}

// Name returns the channel name.
func (n *LogNotifier) Name() string {
	return "log"
}
