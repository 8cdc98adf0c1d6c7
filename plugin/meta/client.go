package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	apperrors "github.com/hrygo/adpilot/internal/errors"
	"github.com/hrygo/adpilot/internal/profile"
	"github.com/hrygo/adpilot/server/service/insight"
)

// The API stores budgets in minor units.
const budgetScale = 100

var campaignFields = []string{
	"id",
	"name",
	"objective",
	"status",
	"effective_status",
	"daily_budget",
	"lifetime_budget",
	"smart_promotion_type",
	"created_time",
}

var insightFields = []string{
	"date_start",
	"date_stop",
	"impressions",
	"clicks",
	"spend",
	"reach",
	"frequency",
	"actions",
	"action_values",
	"conversions",
	"conversion_values",
	"cost_per_action_type",
}

// APIError is the error object of a Graph API response.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error %d (status %d, type %s): %s", e.Code, e.HTTPStatus, e.Type, e.Message)
}

// Temporary reports whether the call may succeed when retried: server
// errors, throttling, and the API's transient codes.
func (e *APIError) Temporary() bool {
	if e.HTTPStatus >= 500 || e.HTTPStatus == http.StatusTooManyRequests {
		return true
	}
	switch e.Code {
	case 1, 2, 4, 17, 32, 613, 80004:
		return true
	}
	return false
}

// Config holds the client settings.
type Config struct {
	BaseURL     string
	APIVersion  string
	AccessToken string

	// RateLimit is the sustained request rate per second.
	RateLimit float64
	Burst     int

	// CacheTTL bounds how long an insights response is reused.
	CacheTTL  time.Duration
	CacheSize int

	MaxRetries int
	Timeout    time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "https://graph.facebook.com",
		APIVersion: "v21.0",
		RateLimit:  5,
		Burst:      10,
		CacheTTL:   5 * time.Minute,
		CacheSize:  512,
		MaxRetries: 3,
		Timeout:    30 * time.Second,
	}
}

// NewConfigFromProfile creates the client config from profile.
func NewConfigFromProfile(p *profile.Profile) Config {
	cfg := DefaultConfig()
	cfg.AccessToken = p.MetaAccessToken
	if p.MetaBaseURL != "" {
		cfg.BaseURL = p.MetaBaseURL
	}
	if p.MetaAPIVersion != "" {
		cfg.APIVersion = p.MetaAPIVersion
	}
	if p.MetaRateLimitRPS > 0 {
		cfg.RateLimit = p.MetaRateLimitRPS
	}
	return cfg
}

// Client talks to the Graph API. Safe for concurrent use.
type Client struct {
	http    *http.Client
	config  Config
	limiter *rate.Limiter
	cache   *expirable.LRU[string, []insight.RawInsight]
	logger  *slog.Logger

	newBackOff func() backoff.BackOff
}

// NewClient creates a Graph API client; zero config values take defaults.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = def.APIVersion
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.AccessToken,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = cfg.Timeout

	return &Client{
		http:    httpClient,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		cache:   expirable.NewLRU[string, []insight.RawInsight](cfg.CacheSize, nil, cfg.CacheTTL),
		logger:  slog.Default(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			b.Reset()
			return b
		},
	}
}

// SetLogger sets a custom logger.
func (c *Client) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// GetCampaigns lists the campaigns of an ad account, optionally restricted to
// the given effective statuses.
func (c *Client) GetCampaigns(ctx context.Context, accountID string, statusFilter []string) ([]Campaign, error) {
	q := url.Values{}
	q.Set("fields", strings.Join(campaignFields, ","))
	q.Set("limit", "200")
	if len(statusFilter) > 0 {
		q.Set("filtering", filterIn("effective_status", statusFilter))
	}

	var campaigns []Campaign
	next := c.endpoint(accountPath(accountID)+"/campaigns", q)
	for next != "" {
		body, err := c.get(ctx, next)
		if err != nil {
			return nil, apperrors.AdPlatformUnavailable("failed to list campaigns", err).WithContext("account_id", accountID)
		}
		p, err := decodePage[wireCampaign](body)
		if err != nil {
			return nil, apperrors.AdPlatformUnavailable("malformed campaigns response", err)
		}
		for _, w := range p.Data {
			campaigns = append(campaigns, w.campaign())
		}
		next = p.Paging.Next
	}
	return campaigns, nil
}

// GetInsights returns daily insight rows for the given level and preset.
// When ids is non-empty only those campaigns are returned. Responses are
// cached for CacheTTL.
func (c *Client) GetInsights(ctx context.Context, accountID string, level Level, preset DatePreset, ids []string) ([]insight.RawInsight, error) {
	key := cacheKey(accountID, level, preset, ids)
	if rows, ok := c.cache.Get(key); ok {
		return slices.Clone(rows), nil
	}

	fields := slices.Clone(insightFields)
	if level != LevelAccount {
		fields = append(fields, "campaign_id", "campaign_name")
	}

	q := url.Values{}
	q.Set("level", string(level))
	q.Set("date_preset", string(preset))
	q.Set("time_increment", "1")
	q.Set("fields", strings.Join(fields, ","))
	q.Set("limit", "500")
	if len(ids) > 0 {
		q.Set("filtering", filterIn(string(level)+".id", ids))
	}

	var rows []insight.RawInsight
	next := c.endpoint(accountPath(accountID)+"/insights", q)
	for next != "" {
		body, err := c.get(ctx, next)
		if err != nil {
			return nil, apperrors.AdPlatformUnavailable("failed to fetch insights", err).
				WithContext("account_id", accountID).
				WithContext("date_preset", string(preset))
		}
		p, err := decodePage[wireInsight](body)
		if err != nil {
			return nil, apperrors.AdPlatformUnavailable("malformed insights response", err)
		}
		for _, w := range p.Data {
			rows = append(rows, w.raw())
		}
		next = p.Paging.Next
	}

	c.cache.Add(key, rows)
	return slices.Clone(rows), nil
}

// CampaignSnapshot fetches one campaign's rows for a period and aggregates them.
func (c *Client) CampaignSnapshot(ctx context.Context, accountID, campaignID string, period insight.Period) (insight.Snapshot, error) {
	rows, err := c.GetInsights(ctx, accountID, LevelCampaign, PresetFor(period), []string{campaignID})
	if err != nil {
		return insight.Snapshot{}, err
	}
	if len(rows) == 0 {
		return insight.Snapshot{}, apperrors.NotFound("insights", campaignID)
	}
	return insight.Build(period, rows), nil
}

// UpdateBudget sets the daily budget of a campaign, in whole currency units.
func (c *Client) UpdateBudget(ctx context.Context, campaignID string, dailyBudget float64) error {
	if campaignID == "" || dailyBudget <= 0 {
		return apperrors.InvalidArgument("campaign id and a positive budget are required")
	}
	form := url.Values{}
	form.Set("daily_budget", strconv.FormatInt(int64(math.Round(dailyBudget*budgetScale)), 10))
	if err := c.update(ctx, campaignID, form); err != nil {
		return apperrors.AdPlatformUnavailable("failed to update budget", err).WithContext("campaign_id", campaignID)
	}
	c.logger.InfoContext(ctx, "campaign budget updated", "campaign_id", campaignID, "daily_budget", dailyBudget)
	return nil
}

// UpdateStatus sets a campaign to ACTIVE or PAUSED.
func (c *Client) UpdateStatus(ctx context.Context, campaignID string, status Status) error {
	if campaignID == "" || !status.Valid() {
		return apperrors.InvalidArgument(fmt.Sprintf("invalid status update %q for campaign %q", status, campaignID))
	}
	form := url.Values{}
	form.Set("status", string(status))
	if err := c.update(ctx, campaignID, form); err != nil {
		return apperrors.AdPlatformUnavailable("failed to update status", err).WithContext("campaign_id", campaignID)
	}
	c.logger.InfoContext(ctx, "campaign status updated", "campaign_id", campaignID, "status", status)
	return nil
}

func (c *Client) update(ctx context.Context, objectID string, form url.Values) error {
	target := c.endpoint(objectID, nil)
	body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return err
	}
	// Cached insights may now describe a stale budget or status.
	c.cache.Purge()

	var resp struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("malformed update response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("update of %s was not acknowledged", objectID)
	}
	return nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
}

// do sends the request built by newReq, waiting on the rate limiter and
// retrying temporary failures with exponential backoff. MaxRetries bounds
// the total number of attempts.
func (c *Client) do(ctx context.Context, newReq func() (*http.Request, error)) ([]byte, error) {
	var (
		body    []byte
		attempt int
	)
	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(err)
		}
		body, err = c.roundTrip(req)
		if apiErr, ok := err.(*APIError); ok && !apiErr.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("graph api request failed, retrying",
			"attempt", attempt,
			"wait_time", wait,
			"error", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.config.MaxRetries-1)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		var wrapped graphErrorBody
		if json.Unmarshal(body, &wrapped) == nil && wrapped.Error != nil {
			wrapped.Error.HTTPStatus = resp.StatusCode
			return nil, wrapped.Error
		}
		return nil, &APIError{HTTPStatus: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.config.BaseURL + "/" + c.config.APIVersion + "/" + strings.TrimLeft(path, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func accountPath(accountID string) string {
	if strings.HasPrefix(accountID, "act_") {
		return accountID
	}
	return "act_" + accountID
}

func filterIn(field string, values []string) string {
	b, _ := json.Marshal([]map[string]any{{
		"field":    field,
		"operator": "IN",
		"value":    values,
	}})
	return string(b)
}

func cacheKey(accountID string, level Level, preset DatePreset, ids []string) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return strings.Join([]string{accountPath(accountID), string(level), string(preset), strings.Join(sorted, ",")}, "|")
}
