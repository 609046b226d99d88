package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/infra/logging"
	"ideaforge-billing/internal/usecase"
)

// BillingFacade composes use cases into the operations transports expose.
// Every method returns a Result so adapters never inspect raw errors.
type BillingFacade struct {
	PlanUC     usecase.PlanUseCase
	SubUC      usecase.SubscriptionUseCase
	QuotaUC    usecase.QuotaUseCase
	InvoiceUC  usecase.InvoiceUseCase
	AnalysisUC usecase.AnalysisUseCase
	AccountUC  usecase.AccountUseCase

	log *zerolog.Logger
}

func NewBillingFacade(
	planUC usecase.PlanUseCase,
	subUC usecase.SubscriptionUseCase,
	quotaUC usecase.QuotaUseCase,
	invoiceUC usecase.InvoiceUseCase,
	analysisUC usecase.AnalysisUseCase,
	accountUC usecase.AccountUseCase,
	logger *zerolog.Logger,
) *BillingFacade {
	l := logger.With().Str("component", "billing_facade").Logger()
	return &BillingFacade{
		PlanUC:     planUC,
		SubUC:      subUC,
		QuotaUC:    quotaUC,
		InvoiceUC:  invoiceUC,
		AnalysisUC: analysisUC,
		AccountUC:  accountUC,
		log:        &l,
	}
}

// fail classifies err and logs what the caller will not see.
func (b *BillingFacade) fail(ctx context.Context, op string, err error) *Failure {
	f := Classify(err)
	log := logging.With(ctx, b.log)
	var ev *zerolog.Event
	switch f.Kind {
	case FailureInternal:
		ev = log.Error()
	case FailureGateway, FailureConflict:
		ev = log.Warn()
	default:
		ev = log.Debug()
	}
	ev.Err(err).Str("op", op).Str("kind", string(f.Kind)).Msg("request failed")
	return f
}

func (b *BillingFacade) ResolvePlan(ctx context.Context, tier, planType string) Result[model.PlanRef] {
	t, p, err := parsePlan(tier, planType)
	if err != nil {
		return failed[model.PlanRef](b.fail(ctx, "ResolvePlan", err))
	}
	id, err := b.PlanUC.ResolvePlan(ctx, t, p)
	if err != nil {
		return failed[model.PlanRef](b.fail(ctx, "ResolvePlan", err))
	}
	return ok(model.PlanRef{PlanID: id})
}

func (b *BillingFacade) CreateSubscription(ctx context.Context, accountID, tier, planType string) Result[*model.Checkout] {
	t, p, err := parsePlan(tier, planType)
	if err != nil {
		return failed[*model.Checkout](b.fail(ctx, "CreateSubscription", err))
	}
	out, err := b.SubUC.CreateSubscription(ctx, accountID, t, p)
	if err != nil {
		return failed[*model.Checkout](b.fail(ctx, "CreateSubscription", err))
	}
	return ok(out)
}

func (b *BillingFacade) CaptureSubscription(ctx context.Context, accountID, subscriptionID string) Result[*model.Account] {
	acc, err := b.SubUC.CaptureSubscription(ctx, accountID, subscriptionID)
	if err != nil {
		return failed[*model.Account](b.fail(ctx, "CaptureSubscription", err))
	}
	return ok(acc)
}

func (b *BillingFacade) ChangePlanDirectly(ctx context.Context, accountID, tier, planType string) Result[*model.Account] {
	t, p, err := parsePlan(tier, planType)
	if err != nil {
		return failed[*model.Account](b.fail(ctx, "ChangePlanDirectly", err))
	}
	acc, err := b.SubUC.ChangePlanDirectly(ctx, accountID, t, p)
	if err != nil {
		return failed[*model.Account](b.fail(ctx, "ChangePlanDirectly", err))
	}
	return ok(acc)
}

func (b *BillingFacade) DowngradeToFree(ctx context.Context, accountID string) Result[*model.Account] {
	acc, err := b.SubUC.DowngradeToFree(ctx, accountID)
	if err != nil {
		return failed[*model.Account](b.fail(ctx, "DowngradeToFree", err))
	}
	return ok(acc)
}

// RemoveAccount deletes the account and its invoices after stopping billing.
func (b *BillingFacade) RemoveAccount(ctx context.Context, accountID string) Result[struct{}] {
	if err := b.AccountUC.RemoveAccount(ctx, accountID); err != nil {
		return failed[struct{}](b.fail(ctx, "RemoveAccount", err))
	}
	return ok(struct{}{})
}

func (b *BillingFacade) UpdatePaymentMethod(ctx context.Context, accountID, returnURL string) Result[string] {
	u, err := b.SubUC.UpdatePaymentMethodURL(ctx, accountID, returnURL)
	if err != nil {
		return failed[string](b.fail(ctx, "UpdatePaymentMethod", err))
	}
	return ok(u)
}

func (b *BillingFacade) ListTransactions(ctx context.Context, accountID string, from, to time.Time) Result[[]model.ProviderTransaction] {
	txs, err := b.SubUC.ListTransactions(ctx, accountID, from, to)
	if err != nil {
		return failed[[]model.ProviderTransaction](b.fail(ctx, "ListTransactions", err))
	}
	return ok(txs)
}

func (b *BillingFacade) ConsumeQuota(ctx context.Context, accountID string, cost model.Cost) Result[*model.QuotaDecision] {
	d, err := b.QuotaUC.Consume(ctx, accountID, cost)
	if err != nil {
		return failed[*model.QuotaDecision](b.fail(ctx, "ConsumeQuota", err))
	}
	return ok(d)
}

func (b *BillingFacade) QuotaStatus(ctx context.Context, accountID string) Result[*model.QuotaStatus] {
	st, err := b.QuotaUC.Status(ctx, accountID)
	if err != nil {
		return failed[*model.QuotaStatus](b.fail(ctx, "QuotaStatus", err))
	}
	return ok(st)
}

func (b *BillingFacade) ListInvoices(ctx context.Context, accountID string) Result[[]*model.Invoice] {
	list, err := b.InvoiceUC.List(ctx, accountID)
	if err != nil {
		return failed[[]*model.Invoice](b.fail(ctx, "ListInvoices", err))
	}
	if list == nil {
		list = []*model.Invoice{}
	}
	return ok(list)
}

func (b *BillingFacade) AnalyzeIdea(ctx context.Context, accountID, idea string) Result[*model.IdeaReport] {
	r, err := b.AnalysisUC.Analyze(ctx, accountID, idea)
	if err != nil {
		return failed[*model.IdeaReport](b.fail(ctx, "AnalyzeIdea", err))
	}
	return ok(r)
}

func (b *BillingFacade) ImproveIdea(ctx context.Context, accountID, plan, request string) Result[*model.Improvement] {
	r, err := b.AnalysisUC.Improve(ctx, accountID, plan, request)
	if err != nil {
		return failed[*model.Improvement](b.fail(ctx, "ImproveIdea", err))
	}
	return ok(r)
}

func parsePlan(tier, planType string) (model.Tier, model.PlanType, error) {
	t, err := model.ParseTier(tier)
	if err != nil {
		return "", "", err
	}
	p, err := model.ParsePlanType(planType)
	if err != nil {
		return "", "", err
	}
	return t, p, nil
}
