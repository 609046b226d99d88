package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"ideaforge-billing/internal/config"
	"ideaforge-billing/internal/domain/ports/adapter"
)

// NewAnalyzer builds the configured provider chain, wrapped in the
// concurrency limiter.
func NewAnalyzer(ctx context.Context, cfg config.AIConfig, logger *zerolog.Logger) (adapter.IdeaAnalyzer, error) {
	chain := make([]adapter.IdeaAnalyzer, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		switch p {
		case "openai":
			a, err := NewOpenAIAdapter(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, cfg.MaxOutputTokens, cfg.Timeout)
			if err != nil {
				return nil, err
			}
			chain = append(chain, a)
		case "gemini":
			a, err := NewGeminiAdapter(ctx, cfg.Gemini.APIKey, cfg.Gemini.BaseURL, cfg.Gemini.Model, cfg.MaxOutputTokens)
			if err != nil {
				return nil, err
			}
			chain = append(chain, a)
		case "noop":
			chain = append(chain, NewNoopAIAdapter())
		default:
			return nil, fmt.Errorf("unknown ai provider %q", p)
		}
	}
	var analyzer adapter.IdeaAnalyzer
	if len(chain) == 1 {
		analyzer = chain[0]
	} else {
		analyzer = NewMultiAIAdapter(logger, chain...)
	}
	return NewLimitedAI(analyzer, cfg.ConcurrentLimit, cfg.Timeout), nil
}
