// Package config loads medisim settings from an optional YAML file and
// MEDISIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/abhisek/medisim/internal/llm"
)

const (
	ResolverRules = "rules"
	ResolverLLM   = "llm"

	ClassifierKeywords = "keywords"
	ClassifierLLM      = "llm"
)

const envPrefix = "MEDISIM"

// Config is the resolved application configuration.
type Config struct {
	// DB is a sqlite path or a postgres:// DSN. Empty selects the default
	// data path.
	DB      string `mapstructure:"db"`
	LogMode string `mapstructure:"log_mode" validate:"oneof=dev prod"`

	// LogFile receives log output while the terminal UI owns the screen.
	LogFile string `mapstructure:"log_file"`

	Resolver     string        `mapstructure:"resolver" validate:"oneof=rules llm"`
	Classifier   string        `mapstructure:"classifier" validate:"oneof=keywords llm"`
	KeywordsFile string        `mapstructure:"keywords_file"`
	CaseCacheTTL time.Duration `mapstructure:"case_cache_ttl" validate:"gte=0"`

	LLM llm.Config `mapstructure:"llm"`
}

// NeedsLLM reports whether any component is configured to call a provider.
func (c *Config) NeedsLLM() bool {
	return c.Resolver == ResolverLLM || c.Classifier == ClassifierLLM
}

// envAliases binds environment variables that do not follow the
// MEDISIM_<KEY> pattern.
var envAliases = map[string][]string{
	"llm.anthropic.api_key":  {"MEDISIM_ANTHROPIC_API_KEY"},
	"llm.anthropic.model":    {"MEDISIM_ANTHROPIC_MODEL"},
	"llm.openai.api_key":     {"MEDISIM_OPENAI_API_KEY"},
	"llm.openai.model":       {"MEDISIM_OPENAI_MODEL"},
	"llm.openai.base_url":    {"MEDISIM_OPENAI_BASE_URL"},
	"llm.gemini.api_key":     {"MEDISIM_GEMINI_API_KEY"},
	"llm.gemini.model":       {"MEDISIM_GEMINI_MODEL"},
	"llm.openrouter.api_key": {"MEDISIM_OPENROUTER_API_KEY"},
	"llm.openrouter.model":   {"MEDISIM_OPENROUTER_MODEL"},
}

// Load reads path when given, otherwise the first medisim.yaml found in the
// working directory or the user config directory. A missing default file is
// not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envAliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("medisim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := userConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or env var is set.
func Default() *Config {
	return &Config{
		LogMode:      "dev",
		Resolver:     ResolverRules,
		Classifier:   ClassifierKeywords,
		CaseCacheTTL: 10 * time.Minute,
		LLM:          llm.DefaultConfig(),
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("db", d.DB)
	v.SetDefault("log_mode", d.LogMode)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("resolver", d.Resolver)
	v.SetDefault("classifier", d.Classifier)
	v.SetDefault("keywords_file", d.KeywordsFile)
	v.SetDefault("case_cache_ttl", d.CaseCacheTTL)

	l := d.LLM
	v.SetDefault("llm.provider", l.Provider)
	v.SetDefault("llm.timeout", l.Timeout)
	for name, pc := range map[string]llm.ProviderConfig{
		"anthropic":  l.Anthropic,
		"openai":     l.OpenAI,
		"gemini":     l.Gemini,
		"openrouter": l.OpenRouter,
	} {
		v.SetDefault("llm."+name+".api_key", pc.APIKey)
		v.SetDefault("llm."+name+".model", pc.Model)
		v.SetDefault("llm."+name+".base_url", pc.BaseURL)
	}
	v.SetDefault("llm.retry.max_attempts", l.Retry.MaxAttempts)
	v.SetDefault("llm.retry.initial_wait", l.Retry.InitialWait)
	v.SetDefault("llm.retry.max_wait", l.Retry.MaxWait)
	v.SetDefault("llm.retry.multiplier", l.Retry.Multiplier)
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("mapstructure")
	})
	return v
}()

// Validate checks enumerated settings. Provider credentials are checked
// later, and only when a component needs the provider.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s=%q (%s %s)", fe.Field(), fe.Value(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ProviderConfig returns the LLM configuration, falling back to API keys
// found in the standard provider env vars when none is configured.
func (c *Config) ProviderConfig() (llm.Config, error) {
	cfg, _ := llm.DiscoverConfig(c.LLM)
	if err := cfg.Validate(); err != nil {
		return llm.Config{}, err
	}
	return cfg, nil
}

func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "medisim")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "medisim")
}
