package llm

import (
	"context"
	"fmt"

	"github.com/abhisek/medisim/internal/logger"
	"github.com/abhisek/medisim/internal/store"
)

// NewProvider creates a Provider from configuration, wrapped with retry and
// event logging: caller -> retry -> logging -> backend. Each attempt is
// recorded as its own event.
func NewProvider(ctx context.Context, cfg Config, events store.EventRepo, log *logger.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "openrouter":
		// OpenRouter speaks the OpenAI wire protocol.
		or := cfg.OpenRouter
		if or.BaseURL == "" {
			or.BaseURL = defaultOpenRouterBaseURL
		}
		base, err = NewOpenAIProvider(or)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "mock":
		return NewMockProvider(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	logged := WithLogging(base, cfg.Provider, events, log)
	return WithRetry(logged, cfg.Retry, log), nil
}
