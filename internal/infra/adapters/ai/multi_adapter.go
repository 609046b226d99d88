// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/adapter"
)

var _ adapter.IdeaAnalyzer = (*MultiAIAdapter)(nil)

// MultiAIAdapter walks an ordered provider chain and falls through to the
// next provider when one fails. A cancelled caller stops the walk.
type MultiAIAdapter struct {
	chain []adapter.IdeaAnalyzer
	log   *zerolog.Logger
}

func NewMultiAIAdapter(logger *zerolog.Logger, chain ...adapter.IdeaAnalyzer) *MultiAIAdapter {
	l := logger.With().Str("component", "ai_chain").Logger()
	out := make([]adapter.IdeaAnalyzer, 0, len(chain))
	for _, a := range chain {
		if a != nil {
			out = append(out, a)
		}
	}
	return &MultiAIAdapter{chain: out, log: &l}
}

func (m *MultiAIAdapter) Name() string {
	names := make([]string, 0, len(m.chain))
	for _, a := range m.chain {
		names = append(names, a.Name())
	}
	return strings.Join(names, ">")
}

func (m *MultiAIAdapter) Analyze(ctx context.Context, idea string) (*model.IdeaReport, error) {
	return walk(ctx, m, "analyze", func(a adapter.IdeaAnalyzer) (*model.IdeaReport, error) {
		return a.Analyze(ctx, idea)
	})
}

func (m *MultiAIAdapter) Improve(ctx context.Context, plan, request string) (*model.Improvement, error) {
	return walk(ctx, m, "improve", func(a adapter.IdeaAnalyzer) (*model.Improvement, error) {
		return a.Improve(ctx, plan, request)
	})
}

var errNoProviders = errors.New("no ai providers configured")

func walk[T any](ctx context.Context, m *MultiAIAdapter, op string, call func(adapter.IdeaAnalyzer) (T, error)) (T, error) {
	var zero T
	if len(m.chain) == 0 {
		return zero, errNoProviders
	}
	var errs []error
	for i, a := range m.chain {
		out, err := call(a)
		if err == nil {
			return out, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		if i < len(m.chain)-1 {
			m.log.Warn().Err(err).Str("op", op).Str("provider", a.Name()).Str("next", m.chain[i+1].Name()).Msg("ai provider failed, falling back")
		}
	}
	return zero, errors.Join(errs...)
}
