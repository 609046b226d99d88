package adapter

import (
	"context"

	"ideaforge-billing/internal/domain/model"
)

// IdeaAnalyzer is the port for the external idea analysis service.
type IdeaAnalyzer interface {
	Name() string
	Analyze(ctx context.Context, idea string) (*model.IdeaReport, error)
	Improve(ctx context.Context, plan, request string) (*model.Improvement, error)
}

// TokenCounter measures prompt size before a paid call is made.
type TokenCounter interface {
	Count(text string) (int, error)
}
