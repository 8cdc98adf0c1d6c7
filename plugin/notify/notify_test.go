package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackNotify(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s := NewSlack(SlackConfig{WebhookURL: srv.URL})
	err := s.Notify(context.Background(), Message{
		Level:  LevelCritical,
		Text:   "fallback",
		Blocks: []Block{Header("🔴 アラート"), Fields("*a*\n1", "*b*\n2"), Divider(), Context("footer")},
	})
	require.NoError(t, err)

	assert.Equal(t, "fallback", got["text"])
	assert.NotContains(t, got, "level")
	blocks := got["blocks"].([]any)
	require.Len(t, blocks, 4)
	header := blocks[0].(map[string]any)
	assert.Equal(t, "header", header["type"])
	assert.Equal(t, "plain_text", header["text"].(map[string]any)["type"])
	assert.Len(t, blocks[1].(map[string]any)["fields"], 2)
	assert.Equal(t, map[string]any{"type": "divider"}, blocks[2])
	assert.Len(t, blocks[3].(map[string]any)["elements"], 1)
}

func TestSlackNotify_Retry(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{name: "server error retried", status: http.StatusBadGateway, wantCalls: 3},
		{name: "rate limited retried", status: http.StatusTooManyRequests, wantCalls: 3},
		{name: "client error not retried", status: http.StatusNotFound, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "no_service", tt.status)
			}))
			defer srv.Close()

			s := NewSlack(SlackConfig{WebhookURL: srv.URL, RetryAttempts: 3})
			s.backoff = func(int) time.Duration { return 0 }
			err := s.Notify(context.Background(), Message{Text: "x"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "no_service")
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestSlackNotify_NoWebhook(t *testing.T) {
	err := NewSlack(SlackConfig{}).Notify(context.Background(), Message{Text: "x"})
	assert.Error(t, err)
}

type recorder struct {
	name string
	err  error
	got  []Message
}

func (r *recorder) Notify(_ context.Context, msg Message) error {
	r.got = append(r.got, msg)
	return r.err
}

func (r *recorder) Name() string { return r.name }

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	ok := &recorder{name: "ok"}
	broken := &recorder{name: "broken", err: errors.New("boom")}

	d := NewDispatcher(LevelWarning)
	d.Register(ok)
	d.Register(broken)
	assert.Equal(t, []string{"broken", "ok"}, d.Channels())

	require.NoError(t, d.Notify(ctx, Message{Level: LevelInfo, Text: "quiet"}))
	assert.Empty(t, ok.got)

	err := d.Notify(ctx, Message{Level: LevelCritical, Text: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel broken")
	require.Len(t, ok.got, 1)
	assert.Equal(t, "loud", ok.got[0].Text)
	assert.Len(t, broken.got, 1)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelCritical, ParseLevel("high"))
	assert.Equal(t, LevelCritical, ParseLevel("critical"))
	assert.Equal(t, LevelWarning, ParseLevel("medium"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.True(t, LevelCritical.Rank() > LevelWarning.Rank())
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(nil)
	assert.Equal(t, "log", n.Name())
	assert.NoError(t, n.Notify(context.Background(), Message{Text: "x"}))
}
