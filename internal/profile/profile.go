package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/mod/semver"
)

const (
	// minGraphAPIVersion is the oldest Marketing API version whose insight fields we parse.
	minGraphAPIVersion = "v18.0"

	ExecutorModeNotifyOnly       = "notify_only"
	ExecutorModeApprovalRequired = "approval_required"
	ExecutorModeAutoExecute      = "auto_execute"
)

// Profile is the configuration to start the adpilot server and CLI.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where adpilot stores its own documents
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// Timezone is the IANA zone used for pacing and the daily report (default: Asia/Tokyo)
	Timezone string
	// LogFormat is "text" or "json"
	LogFormat string
	// LogLevel is "debug", "info", "warn" or "error"
	LogLevel string

	// Meta Marketing API
	MetaAccessToken  string   // ADPILOT_META_ACCESS_TOKEN
	MetaAPIVersion   string   // ADPILOT_META_API_VERSION (default: v21.0)
	MetaBaseURL      string   // ADPILOT_META_BASE_URL (default: https://graph.facebook.com)
	MetaAccountIDs   []string // ADPILOT_META_ACCOUNT_IDS, comma separated
	MetaRateLimitRPS float64  // ADPILOT_META_RATE_LIMIT_RPS (default: 5)

	// LLM
	LLMProvider    string  // ADPILOT_LLM_PROVIDER (default: deepseek)
	LLMBaseURL     string  // ADPILOT_LLM_BASE_URL
	LLMAPIKey      string  // ADPILOT_LLM_API_KEY
	LLMModel       string  // ADPILOT_LLM_MODEL
	LLMMaxTokens   int     // ADPILOT_LLM_MAX_TOKENS (default: 2000)
	LLMTemperature float32 // ADPILOT_LLM_TEMPERATURE (default: 0.3)

	// Notifications
	SlackWebhookURL       string // ADPILOT_SLACK_WEBHOOK_URL
	NotifyHourlyAlerts    bool
	NotifyDailyReport     bool
	NotifySeverityMinimum string // low / medium / high

	// Schedule
	CheckInterval     time.Duration
	DailyReportHour   int
	DailyReportMinute int

	// Executor
	ExecutorMode             string
	MaxBudgetIncreasePercent float64
	MaxDailyBudget           float64
	GuardExpressions         []string

	// Judgment & learning
	MinDailySpend float64
	LearningDelay time.Duration

	// APISecret signs operator bearer tokens for the HTTP API.
	APISecret string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMEnabled returns true if an LLM endpoint can be reached.
func (p *Profile) IsLLMEnabled() bool {
	return p.LLMAPIKey != "" || p.LLMProvider == "ollama"
}

// IsMetaEnabled returns true if the Marketing API client can be built.
func (p *Profile) IsMetaEnabled() bool {
	return p.MetaAccessToken != ""
}

// Location resolves the configured timezone, falling back to Asia/Tokyo.
func (p *Profile) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil || p.Timezone == "" {
		loc, err = time.LoadLocation("Asia/Tokyo")
		if err != nil {
			return time.FixedZone("JST", 9*60*60)
		}
	}
	return loc
}

// FromEnv loads configuration from environment variables.
// Values already set (e.g. from flags) are only overwritten by non-empty env values.
func (p *Profile) FromEnv() {
	getEnv := func(key string) string {
		return strings.TrimSpace(os.Getenv("ADPILOT_" + key))
	}
	setString := func(dst *string, key string) {
		if v := getEnv(key); v != "" {
			*dst = v
		}
	}
	setFloat := func(dst *float64, key string) {
		if v := getEnv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setString(&p.MetaAccessToken, "META_ACCESS_TOKEN")
	setString(&p.MetaAPIVersion, "META_API_VERSION")
	setString(&p.MetaBaseURL, "META_BASE_URL")
	if v := getEnv("META_ACCOUNT_IDS"); v != "" {
		p.MetaAccountIDs = splitList(v)
	}
	setFloat(&p.MetaRateLimitRPS, "META_RATE_LIMIT_RPS")

	setString(&p.LLMProvider, "LLM_PROVIDER")
	setString(&p.LLMBaseURL, "LLM_BASE_URL")
	setString(&p.LLMAPIKey, "LLM_API_KEY")
	setString(&p.LLMModel, "LLM_MODEL")

	setString(&p.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	setString(&p.ExecutorMode, "EXECUTOR_MODE")
	setFloat(&p.MaxBudgetIncreasePercent, "MAX_BUDGET_INCREASE_PERCENT")
	setFloat(&p.MaxDailyBudget, "MAX_DAILY_BUDGET")
	setString(&p.APISecret, "API_SECRET")
	setString(&p.Timezone, "TIMEZONE")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// applyDefaults fills every zero value with its documented default.
func (p *Profile) applyDefaults() {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Timezone == "" {
		p.Timezone = "Asia/Tokyo"
	}
	if p.MetaAPIVersion == "" {
		p.MetaAPIVersion = "v21.0"
	}
	if p.MetaBaseURL == "" {
		p.MetaBaseURL = "https://graph.facebook.com"
	}
	if p.MetaRateLimitRPS <= 0 {
		p.MetaRateLimitRPS = 5
	}
	if p.LLMProvider == "" {
		p.LLMProvider = "deepseek"
	}
	if p.LLMBaseURL == "" {
		switch p.LLMProvider {
		case "openai":
			p.LLMBaseURL = "https://api.openai.com/v1"
		case "ollama":
			p.LLMBaseURL = "http://localhost:11434/v1"
		default:
			p.LLMBaseURL = "https://api.deepseek.com"
		}
	}
	if p.LLMModel == "" {
		switch p.LLMProvider {
		case "openai":
			p.LLMModel = "gpt-4o-mini"
		default:
			p.LLMModel = "deepseek-chat"
		}
	}
	if p.LLMMaxTokens <= 0 {
		p.LLMMaxTokens = 2000
	}
	if p.NotifySeverityMinimum == "" {
		p.NotifySeverityMinimum = "medium"
	}
	if p.CheckInterval <= 0 {
		p.CheckInterval = time.Hour
	}
	if p.ExecutorMode == "" {
		p.ExecutorMode = ExecutorModeApprovalRequired
	}
	if p.MaxBudgetIncreasePercent <= 0 {
		p.MaxBudgetIncreasePercent = 20
	}
	if p.MaxDailyBudget <= 0 {
		p.MaxDailyBudget = 500000
	}
	if p.MinDailySpend <= 0 {
		p.MinDailySpend = 1000
	}
	if p.LearningDelay <= 0 {
		p.LearningDelay = 24 * time.Hour
	}
}

func (p *Profile) Validate() error {
	p.applyDefaults()

	if !semver.IsValid(p.MetaAPIVersion) {
		return errors.Errorf("invalid Meta API version %q, expected a form like v21.0", p.MetaAPIVersion)
	}
	if semver.Compare(p.MetaAPIVersion, minGraphAPIVersion) < 0 {
		return errors.Errorf("Meta API version %s is older than the minimum supported %s", p.MetaAPIVersion, minGraphAPIVersion)
	}

	switch p.ExecutorMode {
	case ExecutorModeNotifyOnly, ExecutorModeApprovalRequired, ExecutorModeAutoExecute:
	default:
		return errors.Errorf("unknown executor mode: %s", p.ExecutorMode)
	}

	switch p.NotifySeverityMinimum {
	case "low", "medium", "high":
	default:
		return errors.Errorf("unknown notification severity: %s", p.NotifySeverityMinimum)
	}

	if p.DailyReportHour < 0 || p.DailyReportHour > 23 || p.DailyReportMinute < 0 || p.DailyReportMinute > 59 {
		return errors.Errorf("invalid daily report time %02d:%02d", p.DailyReportHour, p.DailyReportMinute)
	}

	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return errors.Wrapf(err, "invalid timezone %s", p.Timezone)
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "adpilot")
		} else {
			p.Data = "/var/opt/adpilot"
		}
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0770); err != nil {
				slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
		}
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("adpilot_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
