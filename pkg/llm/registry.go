package llm

import (
	"context"
	"fmt"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
)

// ProviderConfig is the subset of internal/config.LLMConfig a client
// factory needs, kept local to avoid an import cycle with internal/config.
type ProviderConfig struct {
	Provider        string
	Endpoint        string
	Model           string
	Region          string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	XAIAPIKey       string
}

// NewClient builds the Client for cfg.Provider, wrapped in a
// provider-named circuit breaker (SPEC_FULL.md §4.14).
func NewClient(ctx context.Context, cfg ProviderConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewBreakerClient("anthropic", NewAnthropicClient(cfg.AnthropicAPIKey)), nil
	case "bedrock":
		bedrock, err := NewBedrockClient(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		return NewBreakerClient("bedrock", bedrock), nil
	case "openai":
		openaiClient, err := NewOpenAICompatClient(ctx, cfg.OpenAIAPIKey, endpointOrDefault(cfg.Endpoint, "https://api.openai.com/v1"), cfg.Model)
		if err != nil {
			return nil, err
		}
		return NewBreakerClient("openai", openaiClient), nil
	case "xai":
		xaiClient, err := NewOpenAICompatClient(ctx, cfg.XAIAPIKey, endpointOrDefault(cfg.Endpoint, "https://api.x.ai/v1"), cfg.Model)
		if err != nil {
			return nil, err
		}
		return NewBreakerClient("xai", xaiClient), nil
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported LLM provider: %s", cfg.Provider))
	}
}

func endpointOrDefault(endpoint, fallback string) string {
	if endpoint == "" {
		return fallback
	}
	return endpoint
}
