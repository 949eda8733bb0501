package agent

import (
	"context"
	"fmt"
)

// LLMProvider is an interface for LLM API providers.
type LLMProvider interface {
	// Decide makes the single-shot decision call, offering the tool
	// catalog with automatic tool choice.
	Decide(ctx context.Context, req Request) (*Decision, error)

	// Stream makes the token-streamed completion call, invoking emit for
	// every content delta in arrival order. A non-nil error from emit
	// aborts the stream.
	Stream(ctx context.Context, req Request, emit func(delta string) error) error

	// Provider returns the provider name.
	Provider() string
}

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Provider string // "openai" or "anthropic"
	APIKey   string
	BaseURL  string // optional, for OpenAI-compatible endpoints
}

// NewProvider creates an LLM provider from config.
func NewProvider(cfg ProviderConfig) (LLMProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
