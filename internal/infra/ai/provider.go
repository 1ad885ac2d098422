package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bryanwahyu/uxtrap/internal/config"
	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
	"github.com/bryanwahyu/uxtrap/internal/infra/ai/anthropic"
	"github.com/bryanwahyu/uxtrap/internal/infra/ai/gemini"
	"github.com/bryanwahyu/uxtrap/internal/infra/ai/openai"
)

// NewClient returns the model client selected by ai.provider.
func NewClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (evaluation.Client, error) {
	switch cfg.AI.Provider {
	case config.ProviderAnthropic:
		return anthropic.NewClient(anthropic.Config{
			APIKey:    cfg.AI.APIKey,
			BaseURL:   cfg.AI.BaseURL,
			Model:     cfg.AI.Model,
			MaxTokens: cfg.AI.MaxTokens,
			Timeout:   cfg.AITimeout(),
		}, log.Named("anthropic")), nil
	case config.ProviderOpenAI:
		return openai.NewClient(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.MaxTokens), nil
	case config.ProviderGemini:
		return gemini.NewClient(ctx, cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.MaxTokens)
	}
	return nil, fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
}
