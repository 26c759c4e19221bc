package llm

import (
	"fmt"
	"os"
	"time"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// Config holds all LLM provider configuration. Field tags match the keys
// under "llm:" in medisim.yaml.
type Config struct {
	// Provider selects the backend: "anthropic", "openai", "gemini",
	// "openrouter" or "mock". Empty means no provider is configured.
	Provider string `mapstructure:"provider"`

	Anthropic  ProviderConfig `mapstructure:"anthropic"`
	OpenAI     ProviderConfig `mapstructure:"openai"`
	Gemini     ProviderConfig `mapstructure:"gemini"`
	OpenRouter ProviderConfig `mapstructure:"openrouter"`
	Retry      RetryConfig    `mapstructure:"retry"`

	// Timeout bounds a single patient reply or tagging call, retries
	// included.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProviderConfig holds the credentials and model for one backend.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// DefaultConfig returns a Config with default models and no provider.
// Patient replies sit on the interactive path, so retries are short.
func DefaultConfig() Config {
	return Config{
		Anthropic:  ProviderConfig{Model: "claude-haiku"},
		OpenAI:     ProviderConfig{Model: "gpt-4o-mini"},
		Gemini:     ProviderConfig{Model: "gemini-flash"},
		OpenRouter: ProviderConfig{Model: "google/gemini-2.0-flash-001", BaseURL: defaultOpenRouterBaseURL},
		Retry: RetryConfig{
			MaxAttempts: 2,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     4 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 20 * time.Second,
	}
}

// DiscoverConfig starts from base and, when base names no provider, probes
// the standard API key env vars in priority order (Gemini, OpenAI,
// Anthropic, OpenRouter). It returns false when nothing is found.
func DiscoverConfig(base Config) (Config, bool) {
	if base.Provider != "" {
		return base, true
	}
	cfg := base
	probes := []struct {
		env      string
		provider string
		target   *ProviderConfig
	}{
		{"GEMINI_API_KEY", "gemini", &cfg.Gemini},
		{"OPENAI_API_KEY", "openai", &cfg.OpenAI},
		{"ANTHROPIC_API_KEY", "anthropic", &cfg.Anthropic},
		{"OPENROUTER_API_KEY", "openrouter", &cfg.OpenRouter},
	}
	for _, p := range probes {
		if k := os.Getenv(p.env); k != "" {
			cfg.Provider = p.provider
			p.target.APIKey = k
			return cfg, true
		}
	}
	return base, false
}

// Validate checks that the selected provider has its API key set.
func (c Config) Validate() error {
	var pc ProviderConfig
	switch c.Provider {
	case "anthropic":
		pc = c.Anthropic
	case "openai":
		pc = c.OpenAI
	case "gemini":
		pc = c.Gemini
	case "openrouter":
		pc = c.OpenRouter
	case "mock":
		return nil
	case "":
		return fmt.Errorf("no LLM provider configured (set llm.provider or MEDISIM_LLM_PROVIDER)")
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if pc.APIKey == "" {
		return fmt.Errorf("llm.%s.api_key is required for the %s provider", c.Provider, c.Provider)
	}
	return nil
}
