package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/repository"
	"ideaforge-billing/internal/infra/metrics"
)

// Compile-time check
var _ QuotaUseCase = (*quotaUC)(nil)

// QuotaUseCase meters usage of FREE accounts. Paid tiers are unlimited.
type QuotaUseCase interface {
	// Consume charges cost against the account window. An exhausted FREE
	// account gets a *domain.QuotaExceededError.
	Consume(ctx context.Context, accountID string, cost model.Cost) (*model.QuotaDecision, error)
	// Refund undoes a charge made by Consume for an operation that failed
	// downstream, including the window slide.
	Refund(ctx context.Context, accountID string, charge *model.QuotaDecision) error
	Status(ctx context.Context, accountID string) (*model.QuotaStatus, error)
}

type quotaUC struct {
	accounts  repository.AccountRepository
	freeLimit float64
	window    time.Duration
	log       *zerolog.Logger
	now       func() time.Time
}

func NewQuotaUseCase(accounts repository.AccountRepository, freeLimit float64, window time.Duration, logger *zerolog.Logger, opts ...Option) *quotaUC {
	if freeLimit <= 0 {
		freeLimit = model.DefaultFreeLimit
	}
	if window <= 0 {
		window = model.FreeWindow
	}
	o := buildOptions(opts)
	l := logger.With().Str("component", "quota_uc").Logger()
	return &quotaUC{accounts: accounts, freeLimit: freeLimit, window: window, log: &l, now: o.now}
}

func (u *quotaUC) Consume(ctx context.Context, accountID string, cost model.Cost) (*model.QuotaDecision, error) {
	if accountID == "" || !cost.Valid() {
		return nil, domain.ErrInvalidArgument
	}

	var exceeded *domain.QuotaExceededError
	var prevResetAt time.Time
	now := u.now()
	acc, err := mutateAccount(ctx, u.accounts, accountID, func(a *model.Account) error {
		prevResetAt = a.UsageResetAt
		if now.After(a.UsageResetAt) {
			a.UsageCount = 0
			a.UsageResetAt = now.Add(u.window)
		}
		if a.Tier == model.TierFree && a.UsageCount+float64(cost) > u.freeLimit {
			exceeded = &domain.QuotaExceededError{
				ResetAt:         a.UsageResetAt,
				Message:         model.QuotaResetMessage(a.UsageResetAt, now),
				UpgradeRequired: true,
			}
			return exceeded
		}
		a.UsageCount += float64(cost)
		if a.Tier == model.TierFree {
			a.UsageResetAt = now.Add(u.window)
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.As(err, &exceeded) {
			metrics.IncQuotaDecision(string(model.TierFree), "exceeded")
			u.log.Info().Str("account_id", accountID).Time("reset_at", exceeded.ResetAt).Msg("free quota exhausted")
		}
		return nil, err
	}

	metrics.IncQuotaDecision(string(acc.Tier), "allowed")
	d := u.decision(acc)
	d.Charged = cost
	d.PreviousResetAt = prevResetAt
	return d, nil
}

func (u *quotaUC) Refund(ctx context.Context, accountID string, charge *model.QuotaDecision) error {
	if accountID == "" || charge == nil || !charge.Charged.Valid() {
		return domain.ErrInvalidArgument
	}
	_, err := mutateAccount(ctx, u.accounts, accountID, func(a *model.Account) error {
		// A window moved by anything other than this charge is left alone.
		restoreWindow := !charge.PreviousResetAt.IsZero() && a.UsageResetAt.Equal(charge.ResetAt)
		if a.UsageCount == 0 && !restoreWindow {
			return errUnchanged
		}
		a.UsageCount = math.Max(0, a.UsageCount-float64(charge.Charged))
		if restoreWindow {
			a.UsageResetAt = charge.PreviousResetAt
		}
		a.UpdatedAt = u.now()
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return fmt.Errorf("refund quota: %w", err)
	}
	return nil
}

func (u *quotaUC) Status(ctx context.Context, accountID string) (*model.QuotaStatus, error) {
	if accountID == "" {
		return nil, domain.ErrInvalidArgument
	}
	acc, err := u.accounts.FindByID(ctx, repository.NoTX, accountID)
	if err != nil {
		return nil, err
	}
	view := *acc
	if now := u.now(); now.After(view.UsageResetAt) {
		view.UsageCount = 0
		view.UsageResetAt = now.Add(u.window)
	}
	d := u.decision(&view)
	return &model.QuotaStatus{
		Tier:      view.Tier,
		Used:      d.Used,
		Limit:     d.Limit,
		Remaining: d.Remaining,
		Unlimited: d.Unlimited,
		ResetAt:   d.ResetAt,
	}, nil
}

func (u *quotaUC) decision(a *model.Account) *model.QuotaDecision {
	d := &model.QuotaDecision{
		Allowed: true,
		Used:    a.UsageCount,
		ResetAt: a.UsageResetAt,
	}
	if a.Tier.Paid() {
		d.Unlimited = true
		return d
	}
	d.Limit = u.freeLimit
	d.Remaining = math.Max(0, u.freeLimit-a.UsageCount)
	return d
}
