package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/adapter"
	"ideaforge-billing/internal/infra/logging"
	"ideaforge-billing/internal/infra/metrics"
)

// Compile-time check
var _ AnalysisUseCase = (*analysisUC)(nil)

// AnalysisUseCase runs metered idea analysis.
type AnalysisUseCase interface {
	Analyze(ctx context.Context, accountID, idea string) (*model.IdeaReport, error)
	Improve(ctx context.Context, accountID, plan, request string) (*model.Improvement, error)
}

type analysisUC struct {
	quota          QuotaUseCase
	analyzer       adapter.IdeaAnalyzer
	counter        adapter.TokenCounter
	maxInputTokens int
	log            *zerolog.Logger
}

func NewAnalysisUseCase(quota QuotaUseCase, analyzer adapter.IdeaAnalyzer, counter adapter.TokenCounter, maxInputTokens int, logger *zerolog.Logger) *analysisUC {
	l := logger.With().Str("component", "analysis_uc").Logger()
	return &analysisUC{quota: quota, analyzer: analyzer, counter: counter, maxInputTokens: maxInputTokens, log: &l}
}

func (u *analysisUC) Analyze(ctx context.Context, accountID, idea string) (*model.IdeaReport, error) {
	defer logging.TraceDuration(u.log, "AnalysisUC.Analyze")()

	idea, err := model.NormalizeIdea(idea)
	if err != nil {
		return nil, fmt.Errorf("idea must be at least %d characters: %w", model.MinIdeaLength, err)
	}
	if err := u.checkBudget(idea); err != nil {
		return nil, err
	}

	var report *model.IdeaReport
	err = u.metered(ctx, accountID, model.CostAnalysis, "analyze", func(ctx context.Context) error {
		var err error
		report, err = u.analyzer.Analyze(ctx, idea)
		return err
	})
	return report, err
}

func (u *analysisUC) Improve(ctx context.Context, accountID, plan, request string) (*model.Improvement, error) {
	defer logging.TraceDuration(u.log, "AnalysisUC.Improve")()

	plan, err := model.NormalizeIdea(plan)
	if err != nil {
		return nil, fmt.Errorf("plan must be at least %d characters: %w", model.MinIdeaLength, err)
	}
	request = strings.TrimSpace(request)
	if err := u.checkBudget(plan + "\n" + request); err != nil {
		return nil, err
	}

	var out *model.Improvement
	err = u.metered(ctx, accountID, model.CostImprove, "improve", func(ctx context.Context) error {
		var err error
		out, err = u.analyzer.Improve(ctx, plan, request)
		return err
	})
	return out, err
}

func (u *analysisUC) checkBudget(text string) error {
	if u.counter == nil || u.maxInputTokens <= 0 {
		return nil
	}
	n, err := u.counter.Count(text)
	if err != nil {
		u.log.Warn().Err(err).Msg("token count failed, skipping input budget check")
		return nil
	}
	if n > u.maxInputTokens {
		return fmt.Errorf("input is %d tokens, limit is %d: %w", n, u.maxInputTokens, domain.ErrInvalidArgument)
	}
	return nil
}

// metered charges cost, runs call and refunds the charge if call fails.
func (u *analysisUC) metered(ctx context.Context, accountID string, cost model.Cost, kind string, call func(ctx context.Context) error) error {
	charge, err := u.quota.Consume(ctx, accountID, cost)
	if err != nil {
		return err
	}

	started := time.Now()
	err = call(ctx)
	metrics.ObserveAnalysis(u.analyzer.Name(), kind, started, err)
	if err == nil {
		return nil
	}

	if rerr := u.quota.Refund(context.WithoutCancel(ctx), accountID, charge); rerr != nil {
		u.log.Error().Err(rerr).Str("account_id", accountID).Msg("failed to refund quota")
	}
	if errors.Is(err, domain.ErrAnalysisFailed) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", kind, domain.ErrAnalysisFailed, err)
}
