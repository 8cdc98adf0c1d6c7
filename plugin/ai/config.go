package ai

import (
	"errors"
	"time"

	"github.com/hrygo/adpilot/internal/profile"
)

// Config represents LLM configuration.
type Config struct {
	Provider    string // deepseek, openai, ollama
	Model       string // deepseek-chat
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2000
	Temperature float32 // default: 0.3
	MaxRetries  int
	Timeout     time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:    "deepseek",
		Model:       "deepseek-chat",
		BaseURL:     "https://api.deepseek.com",
		MaxTokens:   2000,
		Temperature: 0.3,
		MaxRetries:  3,
		Timeout:     60 * time.Second,
	}
}

// NewConfigFromProfile creates LLM config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := DefaultConfig()
	cfg.Provider = p.LLMProvider
	cfg.Model = p.LLMModel
	cfg.APIKey = p.LLMAPIKey
	cfg.BaseURL = p.LLMBaseURL
	if p.LLMMaxTokens > 0 {
		cfg.MaxTokens = p.LLMMaxTokens
	}
	if p.LLMTemperature > 0 {
		cfg.Temperature = p.LLMTemperature
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case "deepseek", "openai", "ollama":
	case "":
		return errors.New("LLM provider is required")
	default:
		return errors.New("unsupported LLM provider: " + c.Provider)
	}

	if c.Provider != "ollama" && c.APIKey == "" {
		return errors.New("LLM API key is required")
	}

	if c.Model == "" {
		return errors.New("LLM model is required")
	}

	return nil
}
