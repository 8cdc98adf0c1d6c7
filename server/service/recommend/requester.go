package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hrygo/adpilot/internal/observability"
	"github.com/hrygo/adpilot/plugin/ai"
	"github.com/hrygo/adpilot/server/timezone"
)

// DefaultMaxRecommendations caps the validated recommendations per request.
const DefaultMaxRecommendations = 3

// LLM completes one system/user exchange.
type LLM interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config holds requester settings.
type Config struct {
	MaxRecommendations int
	Location           *time.Location
	Timeout            time.Duration
}

// Requester builds the prompt, calls the LLM and validates its answer.
type Requester struct {
	llm     LLM
	config  Config
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRequester creates a requester. llm may be nil; requests then report
// StatusDisabled.
func NewRequester(llm LLM, cfg Config) *Requester {
	if cfg.MaxRecommendations <= 0 {
		cfg.MaxRecommendations = DefaultMaxRecommendations
	}
	if cfg.Location == nil {
		cfg.Location = timezone.LocationAsiaTokyo
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Requester{llm: llm, config: cfg, logger: slog.Default()}
}

// SetLogger sets a custom logger.
func (r *Requester) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

// SetMetrics attaches Prometheus collectors.
func (r *Requester) SetMetrics(m *observability.Metrics) {
	r.metrics = m
}

// Enabled reports whether an LLM is configured.
func (r *Requester) Enabled() bool {
	return r != nil && r.llm != nil
}

// Request asks for recommendations on the campaigns of in. It never fails:
// any problem yields an empty outcome and a single log line.
func (r *Requester) Request(ctx context.Context, in Input) Outcome {
	if !r.Enabled() {
		return Outcome{Recommendations: []Recommendation{}, Status: StatusDisabled}
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	out := r.request(ctx, in)
	r.metrics.RecordLLMRequest(string(out.Status))
	switch out.Status {
	case StatusError, StatusUnparseable:
		r.logger.WarnContext(ctx, "recommendation request failed", "status", out.Status, "error", out.Err)
	default:
		r.logger.InfoContext(ctx, "recommendations received",
			"status", out.Status,
			"count", len(out.Recommendations),
			"dropped", out.Dropped)
	}
	return out
}

func (r *Requester) request(ctx context.Context, in Input) Outcome {
	empty := []Recommendation{}

	system, user, err := BuildPrompt(in, r.config.Location)
	if err != nil {
		return Outcome{Recommendations: empty, Status: StatusError, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	reply, err := r.llm.Complete(ctx, system, user)
	if err != nil {
		return Outcome{Recommendations: empty, Status: StatusError, Err: err}
	}

	raw, err := decode(reply)
	if err != nil {
		return Outcome{Recommendations: empty, Status: StatusUnparseable, Err: err}
	}

	recs, dropped := r.validate(raw, in.Campaigns)
	status := StatusOK
	if len(recs) == 0 {
		status = StatusEmpty
	}
	return Outcome{Recommendations: recs, Status: status, Dropped: dropped}
}

// decode accepts a bare array or an object wrapping it under "recommendations".
func decode(reply string) ([]Recommendation, error) {
	payload, err := ai.ExtractJSON(reply)
	if err != nil {
		return nil, err
	}

	var recs []Recommendation
	if bytes.HasPrefix(bytes.TrimSpace(payload), []byte("{")) {
		var wrapped struct {
			Recommendations []Recommendation `json:"recommendations"`
		}
		if err := json.Unmarshal(payload, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Recommendations, nil
	}
	if err := json.Unmarshal(payload, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// validate keeps recommendations naming a known campaign exactly and a
// known action type, up to the configured maximum.
func (r *Requester) validate(raw []Recommendation, campaigns []CampaignResult) ([]Recommendation, int) {
	ids := make(map[string]string, len(campaigns))
	for _, c := range campaigns {
		ids[c.Profile.Name] = c.Profile.ID
	}

	recs := []Recommendation{}
	dropped := 0
	for _, rec := range raw {
		id, known := ids[rec.CampaignName]
		if !known || !rec.ActionType.Valid() {
			dropped++
			r.logger.Debug("dropped recommendation",
				"campaign_name", rec.CampaignName,
				"action_type", rec.ActionType)
			continue
		}
		if len(recs) == r.config.MaxRecommendations {
			dropped++
			continue
		}
		switch rec.Priority {
		case PriorityHigh, PriorityMedium, PriorityLow:
		default:
			rec.Priority = PriorityMedium
		}
		rec.CampaignID = id
		recs = append(recs, rec)
	}
	return recs, dropped
}
