package ai

import (
	"context"
	"time"

	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.IdeaAnalyzer = (*limitedAI)(nil)

type limitedAI struct {
	inner   adapter.IdeaAnalyzer
	sem     chan struct{}
	timeout time.Duration
}

// NewLimitedAI bounds concurrent calls to inner and gives each call its own
// deadline. Waiting for a slot honours ctx.
func NewLimitedAI(inner adapter.IdeaAnalyzer, maxConcurrent int, timeout time.Duration) adapter.IdeaAnalyzer {
	if maxConcurrent <= 0 && timeout <= 0 {
		return inner
	}
	l := &limitedAI{inner: inner, timeout: timeout}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	return l
}

func (l *limitedAI) Name() string { return l.inner.Name() }

func (l *limitedAI) acquire(ctx context.Context) (context.Context, func(), error) {
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	cancel := func() {}
	if l.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
	}
	return ctx, func() {
		cancel()
		if l.sem != nil {
			<-l.sem
		}
	}, nil
}

func (l *limitedAI) Analyze(ctx context.Context, idea string) (*model.IdeaReport, error) {
	ctx, release, err := l.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.inner.Analyze(ctx, idea)
}

func (l *limitedAI) Improve(ctx context.Context, plan, request string) (*model.Improvement, error) {
	ctx, release, err := l.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.inner.Improve(ctx, plan, request)
}
