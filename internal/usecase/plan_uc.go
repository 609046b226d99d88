package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/adapter"
	"ideaforge-billing/internal/infra/logging"
)

// Compile-time check
var _ PlanUseCase = (*planUC)(nil)

// PlanUseCase maps (tier, plan) pairs onto provider plan ids, creating the
// provider catalog lazily.
type PlanUseCase interface {
	ResolvePlan(ctx context.Context, tier model.Tier, plan model.PlanType) (string, error)
	// DescribePlan reads the reverse catalog entry for a provider plan id.
	DescribePlan(ctx context.Context, planID string) (model.PlanDetails, bool)
	// RememberPlan stores a reverse catalog entry learned elsewhere.
	RememberPlan(ctx context.Context, planID string, details model.PlanDetails)
}

type planUC struct {
	gateway adapter.PaymentGateway
	cache   adapter.CacheStore
	ttl     time.Duration
	log     *zerolog.Logger
}

func NewPlanUseCase(gateway adapter.PaymentGateway, cache adapter.CacheStore, ttl time.Duration, logger *zerolog.Logger) *planUC {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	l := logger.With().Str("component", "plan_uc").Logger()
	return &planUC{gateway: gateway, cache: cache, ttl: ttl, log: &l}
}

func (u *planUC) ResolvePlan(ctx context.Context, tier model.Tier, plan model.PlanType) (string, error) {
	defer logging.TraceDuration(u.log, "PlanUC.ResolvePlan")()

	amount, err := model.PriceFor(tier, plan)
	if err != nil {
		return "", err
	}
	details := model.PlanDetails{Tier: tier, PlanType: plan, Amount: amount}

	var ref model.PlanRef
	if u.cache.Get(ctx, planKey(tier, plan), &ref) && ref.PlanID != "" {
		u.RememberPlan(ctx, ref.PlanID, details)
		return ref.PlanID, nil
	}

	interval, err := tier.Interval()
	if err != nil {
		return "", err
	}
	productID, err := u.gateway.CreateProduct(ctx,
		fmt.Sprintf("%s Subscription", plan),
		fmt.Sprintf("%s plan, billed %s", plan, strings.ToLower(string(tier))))
	if err != nil {
		return "", gatewayFailure("create product", err)
	}
	planID, err := u.gateway.CreatePlan(ctx, model.PlanSpec{
		ProductID:     productID,
		Name:          fmt.Sprintf("%s %s Plan", plan, tier),
		Description:   fmt.Sprintf("%s subscription billed every %s", plan, strings.ToLower(string(interval))),
		Amount:        amount,
		Currency:      model.DefaultCurrency,
		IntervalUnit:  interval,
		IntervalCount: 1,
	})
	if err != nil {
		return "", gatewayFailure("create plan", err)
	}

	u.cache.Set(ctx, planKey(tier, plan), model.PlanRef{PlanID: planID}, u.ttl)
	u.RememberPlan(ctx, planID, details)
	u.log.Info().
		Str("plan_id", planID).
		Str("tier", string(tier)).
		Str("plan", string(plan)).
		Msg("provider plan created")
	return planID, nil
}

func (u *planUC) DescribePlan(ctx context.Context, planID string) (model.PlanDetails, bool) {
	var d model.PlanDetails
	if planID == "" || !u.cache.Get(ctx, planDetailsKey(planID), &d) {
		return model.PlanDetails{}, false
	}
	if !d.Tier.Paid() || !d.PlanType.Valid() {
		return model.PlanDetails{}, false
	}
	return d, true
}

func (u *planUC) RememberPlan(ctx context.Context, planID string, details model.PlanDetails) {
	if planID == "" {
		return
	}
	u.cache.Set(ctx, planDetailsKey(planID), details, u.ttl)
}
