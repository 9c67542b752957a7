package llm

import (
	"context"
	"fmt"

	"github.com/builder6/builder6/pkg/config"
	apperrors "github.com/builder6/builder6/pkg/errors"
)

// NewProviderFromConfig selects and builds the provider adapter named by
// the configuration.
func NewProviderFromConfig(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.Model)
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.Model), nil
	case config.ProviderAnthropic:
		return NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.Model), nil
	default:
		return nil, apperrors.New(apperrors.ErrCodeInternal,
			fmt.Sprintf("unsupported provider: %s", cfg.Provider), nil)
	}
}
