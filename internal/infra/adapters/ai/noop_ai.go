package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/adapter"
)

var _ adapter.IdeaAnalyzer = (*NoopAIAdapter)(nil)

// NoopAIAdapter returns canned, deterministic results for local/dev testing.
type NoopAIAdapter struct {
	delay time.Duration
}

// NewNoopAIAdapter constructs the noop adapter.
func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{delay: 50 * time.Millisecond}
}

func (a *NoopAIAdapter) Name() string { return "noop" }

func (a *NoopAIAdapter) wait(ctx context.Context) error {
	select {
	case <-time.After(a.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Analyze scores by idea length so repeated calls agree.
func (a *NoopAIAdapter) Analyze(ctx context.Context, idea string) (*model.IdeaReport, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	words := len(strings.Fields(idea))
	score := min(40+words, 90)
	verdict := "needs work"
	if score >= 70 {
		verdict = "promising"
	}
	return &model.IdeaReport{
		Score:     score,
		Verdict:   verdict,
		Summary:   fmt.Sprintf("Offline review of a %d-word idea.", words),
		Strengths: []string{"Clearly stated"},
		Risks:     []string{"Not reviewed by a live model"},
	}, nil
}

func (a *NoopAIAdapter) Improve(ctx context.Context, plan, request string) (*model.Improvement, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return &model.Improvement{Suggestions: "Narrow the target customer and validate pricing with five interviews."}, nil
}
