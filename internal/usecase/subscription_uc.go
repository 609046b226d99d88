package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/adapter"
	"ideaforge-billing/internal/domain/ports/repository"
	portsuc "ideaforge-billing/internal/domain/ports/usecase"
	"ideaforge-billing/internal/infra/logging"
	"ideaforge-billing/internal/infra/metrics"
)

// Compile-time checks
var (
	_ SubscriptionUseCase            = (*subscriptionUC)(nil)
	_ portsuc.SubscriptionReconciler = (*subscriptionUC)(nil)
)

// SubscriptionUseCase coordinates an account's subscription lifecycle with
// the payment provider, the plan catalog and the invoice ledger.
type SubscriptionUseCase interface {
	CreateSubscription(ctx context.Context, accountID string, tier model.Tier, plan model.PlanType) (*model.Checkout, error)
	CaptureSubscription(ctx context.Context, accountID, subscriptionID string) (*model.Account, error)
	ChangePlanDirectly(ctx context.Context, accountID string, tier model.Tier, plan model.PlanType) (*model.Account, error)
	DowngradeToFree(ctx context.Context, accountID string) (*model.Account, error)
	UpdatePaymentMethodURL(ctx context.Context, accountID, returnURL string) (string, error)
	ListTransactions(ctx context.Context, accountID string, from, to time.Time) ([]model.ProviderTransaction, error)
	ReconcileAccount(ctx context.Context, accountID string) (bool, error)
}

// SubscriptionSettings carries the coordinator's scalar configuration.
type SubscriptionSettings struct {
	BaseURL    string // public origin used for provider return/cancel URLs
	PendingTTL time.Duration
	LockTTL    time.Duration
}

const transactionLookback = 365 * 24 * time.Hour

type subscriptionUC struct {
	accounts repository.AccountRepository
	plans    PlanUseCase
	invoices InvoiceUseCase
	gateway  adapter.PaymentGateway
	cache    adapter.CacheStore
	locker   adapter.Locker
	settings SubscriptionSettings
	log      *zerolog.Logger
	now      func() time.Time
}

func NewSubscriptionUseCase(
	accounts repository.AccountRepository,
	plans PlanUseCase,
	invoices InvoiceUseCase,
	gateway adapter.PaymentGateway,
	cache adapter.CacheStore,
	locker adapter.Locker,
	settings SubscriptionSettings,
	logger *zerolog.Logger,
	opts ...Option,
) *subscriptionUC {
	if settings.PendingTTL <= 0 {
		settings.PendingTTL = 24 * time.Hour
	}
	if settings.LockTTL <= 0 {
		settings.LockTTL = 30 * time.Second
	}
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")
	o := buildOptions(opts)
	l := logger.With().Str("component", "subscription_uc").Logger()
	return &subscriptionUC{
		accounts: accounts,
		plans:    plans,
		invoices: invoices,
		gateway:  gateway,
		cache:    cache,
		locker:   locker,
		settings: settings,
		log:      &l,
		now:      o.now,
	}
}

func (u *subscriptionUC) returnURL() string { return u.settings.BaseURL + "/billing/payment/return" }
func (u *subscriptionUC) cancelURL() string { return u.settings.BaseURL + "/billing/payment/cancel" }

func (u *subscriptionUC) logger(ctx context.Context, accountID, subscriptionID string) *zerolog.Logger {
	ctx = logging.WithAccountID(ctx, accountID)
	if subscriptionID != "" {
		ctx = logging.WithSubscriptionID(ctx, subscriptionID)
	}
	return logging.With(ctx, u.log)
}

func (u *subscriptionUC) CreateSubscription(ctx context.Context, accountID string, tier model.Tier, plan model.PlanType) (*model.Checkout, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.CreateSubscription")()

	if accountID == "" {
		return nil, domain.ErrInvalidArgument
	}
	acc, err := u.accounts.FindByID(ctx, repository.NoTX, accountID)
	if err != nil {
		return nil, err
	}
	amount, err := model.PriceFor(tier, plan)
	if err != nil {
		return nil, err
	}
	planID, err := u.plans.ResolvePlan(ctx, tier, plan)
	if err != nil {
		return nil, err
	}
	created, err := u.gateway.CreateSubscription(ctx, model.SubscriptionRequest{
		PlanID:          planID,
		ReturnURL:       u.returnURL(),
		CancelURL:       u.cancelURL(),
		SubscriberEmail: acc.Email,
		SubscriberName:  acc.Name,
	})
	if err != nil {
		return nil, gatewayFailure("create subscription", err)
	}
	if created.ID == "" || created.ApprovalURL == "" {
		return nil, &domain.GatewayError{Op: "create subscription", Message: "provider returned no approval link"}
	}

	u.cache.Set(ctx, pendingKey(created.ID), model.PendingSubscription{
		AccountID: accountID,
		Tier:      tier,
		PlanType:  plan,
		Amount:    amount,
		PlanID:    planID,
	}, u.settings.PendingTTL)

	u.logger(ctx, accountID, created.ID).Info().
		Str("tier", string(tier)).
		Str("plan", string(plan)).
		Msg("subscription pending approval")
	return &model.Checkout{SubscriptionID: created.ID, ApprovalURL: created.ApprovalURL}, nil
}

func (u *subscriptionUC) CaptureSubscription(ctx context.Context, accountID, subscriptionID string) (*model.Account, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.CaptureSubscription")()

	if accountID == "" || subscriptionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	log := u.logger(ctx, accountID, subscriptionID)

	var pending model.PendingSubscription
	hasPending := u.cache.Get(ctx, pendingKey(subscriptionID), &pending)
	if hasPending && pending.AccountID != accountID {
		log.Warn().Str("pending_account_id", pending.AccountID).Msg("capture attempted by a different account")
		return nil, domain.ErrUnauthorized
	}
	if !hasPending {
		// The pending record is gone once captured; the paid invoice keeps the owner.
		inv, err := u.invoices.FindBySubscription(ctx, subscriptionID)
		switch {
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("find invoice for %s: %w", subscriptionID, err)
		case err == nil && inv != nil && inv.AccountID != accountID:
			log.Warn().Str("owner_account_id", inv.AccountID).Msg("capture attempted on a subscription owned by another account")
			return nil, domain.ErrUnauthorized
		}
	}

	sub, err := u.gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if domain.IsResourceNotFound(err) {
			return nil, fmt.Errorf("subscription %s: %w", subscriptionID, domain.ErrNotFound)
		}
		return nil, gatewayFailure("get subscription", err)
	}

	details := model.PlanDetails{Tier: pending.Tier, PlanType: pending.PlanType, Amount: pending.Amount}
	if !hasPending || !pending.Tier.Paid() || !pending.PlanType.Valid() {
		details = u.classify(ctx, log, sub.PlanID)
	}

	if !model.Activatable(sub.Status) {
		return nil, fmt.Errorf("subscription %s is %s: %w", subscriptionID, sub.Status, domain.ErrInvalidState)
	}

	var acc *model.Account
	err = withAccountLock(ctx, u.locker, u.settings.LockTTL, log, accountID, func(ctx context.Context) error {
		var err error
		acc, err = u.activate(ctx, log, accountID, subscriptionID, details, "capture")
		return err
	})
	if err != nil {
		return nil, err
	}

	u.cache.Delete(ctx, pendingKey(subscriptionID))
	return acc, nil
}

// activate moves the account onto details under subscriptionID and records
// the paid invoice. It is a no-op when both already happened.
func (u *subscriptionUC) activate(ctx context.Context, log *zerolog.Logger, accountID, subscriptionID string, details model.PlanDetails, via string) (*model.Account, error) {
	var prevTier model.Tier
	var prevPlan model.PlanType
	now := u.now()
	acc, err := mutateAccount(ctx, u.accounts, accountID, func(a *model.Account) error {
		prevTier, prevPlan = a.Tier, a.Plan
		if a.ProviderSubscriptionID == subscriptionID && u.hasInvoice(ctx, log, subscriptionID) {
			return errUnchanged
		}
		return a.ApplyPlan(details.Tier, details.PlanType, subscriptionID, now)
	})
	if errors.Is(err, errUnchanged) {
		log.Info().Msg("subscription already active, nothing to do")
		return acc, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.IncSubscriptionTransition(string(prevTier), string(acc.Tier), via)
	log.Info().
		Str("from_tier", string(prevTier)).
		Str("tier", string(acc.Tier)).
		Str("plan", string(acc.Plan)).
		Time("usage_reset_at", acc.UsageResetAt).
		Msg("subscription activated")

	if !u.hasInvoice(ctx, log, subscriptionID) {
		u.issue(ctx, log, &model.Invoice{
			AccountID:              accountID,
			Amount:                 details.Amount,
			Currency:               model.DefaultCurrency,
			Tier:                   acc.Tier,
			Plan:                   acc.Plan,
			PreviousTier:           prevTier,
			PreviousPlan:           prevPlan,
			IssuedAt:               now,
			Status:                 model.InvoiceStatusPaid,
			ProviderSubscriptionID: subscriptionID,
		})
	}
	return acc, nil
}

func (u *subscriptionUC) hasInvoice(ctx context.Context, log *zerolog.Logger, subscriptionID string) bool {
	inv, err := u.invoices.FindBySubscription(ctx, subscriptionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Msg("invoice lookup failed")
		}
		return false
	}
	return inv != nil
}

// issue records an invoice. Ledger failures never undo the transition.
func (u *subscriptionUC) issue(ctx context.Context, log *zerolog.Logger, draft *model.Invoice) {
	if _, err := u.invoices.Issue(ctx, draft); err != nil {
		log.Error().Err(err).
			Str("status", string(draft.Status)).
			Str("amount", draft.Amount.StringFixed(2)).
			Msg("failed to issue invoice")
	}
}

// classify recovers tier and plan from the provider when no pending record
// survived. It never fails; unknowns fall back to the cheapest plan.
func (u *subscriptionUC) classify(ctx context.Context, log *zerolog.Logger, planID string) model.PlanDetails {
	fallback := func(tier model.Tier, reason string) model.PlanDetails {
		plan := model.CheapestPlan()
		amount, _ := model.PriceFor(tier, plan)
		log.Warn().Str("plan_id", planID).Str("reason", reason).
			Str("tier", string(tier)).Str("plan", string(plan)).
			Msg("could not classify provider plan, using cheapest plan")
		return model.PlanDetails{Tier: tier, PlanType: plan, Amount: amount}
	}

	if planID == "" {
		return fallback(model.TierMonthly, "subscription has no plan id")
	}
	if d, ok := u.plans.DescribePlan(ctx, planID); ok {
		return d
	}

	gp, err := u.gateway.GetPlan(ctx, planID)
	if err != nil {
		return fallback(model.TierMonthly, "plan lookup failed: "+err.Error())
	}
	if len(gp.BillingCycles) == 0 {
		return fallback(model.TierMonthly, "plan has no billing cycles")
	}
	cycle := gp.BillingCycles[0]
	tier, ok := model.TierForInterval(cycle.IntervalUnit)
	if !ok {
		return fallback(model.TierMonthly, "unknown interval "+cycle.IntervalUnit)
	}
	plan, ok := model.ClassifyPrice(tier, cycle.Price)
	if !ok {
		return fallback(tier, "no plan priced "+cycle.Price.String())
	}

	d := model.PlanDetails{Tier: tier, PlanType: plan, Amount: cycle.Price}
	u.plans.RememberPlan(ctx, planID, d)
	return d
}

// suspend stops billing of an old subscription. Failures are logged only.
func (u *subscriptionUC) suspend(ctx context.Context, log *zerolog.Logger, subscriptionID string) {
	err := u.gateway.SuspendSubscription(ctx, subscriptionID, adapter.SuspendReason)
	switch {
	case err == nil:
		log.Info().Str("old_subscription_id", subscriptionID).Msg("provider subscription suspended")
	case domain.IsResourceNotFound(err):
		log.Debug().Str("old_subscription_id", subscriptionID).Msg("provider subscription already gone")
	default:
		log.Warn().Err(err).Str("old_subscription_id", subscriptionID).Msg("failed to suspend provider subscription")
	}
}

func (u *subscriptionUC) ChangePlanDirectly(ctx context.Context, accountID string, tier model.Tier, plan model.PlanType) (*model.Account, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ChangePlanDirectly")()

	if accountID == "" {
		return nil, domain.ErrInvalidArgument
	}
	amount, err := model.PriceFor(tier, plan)
	if err != nil {
		return nil, err
	}
	log := u.logger(ctx, accountID, "")

	var acc *model.Account
	err = withAccountLock(ctx, u.locker, u.settings.LockTTL, log, accountID, func(ctx context.Context) error {
		current, err := u.accounts.FindByID(ctx, repository.NoTX, accountID)
		if err != nil {
			return err
		}
		if current.ProviderSubscriptionID == "" {
			return fmt.Errorf("account %s has no subscription to change: %w", accountID, domain.ErrInvalidState)
		}
		u.suspend(ctx, log, current.ProviderSubscriptionID)

		planID, err := u.plans.ResolvePlan(ctx, tier, plan)
		if err != nil {
			return err
		}
		created, err := u.gateway.CreateSubscription(ctx, model.SubscriptionRequest{
			PlanID:          planID,
			ReturnURL:       u.returnURL(),
			CancelURL:       u.cancelURL(),
			SubscriberEmail: current.Email,
			SubscriberName:  current.Name,
		})
		if err != nil {
			return gatewayFailure("create subscription", err)
		}
		if created.ID == "" {
			return &domain.GatewayError{Op: "create subscription", Message: "provider returned no subscription id"}
		}

		sublog := u.logger(ctx, accountID, created.ID)
		acc, err = u.activate(ctx, sublog, accountID, created.ID, model.PlanDetails{Tier: tier, PlanType: plan, Amount: amount}, "change")
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (u *subscriptionUC) DowngradeToFree(ctx context.Context, accountID string) (*model.Account, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.DowngradeToFree")()

	if accountID == "" {
		return nil, domain.ErrInvalidArgument
	}
	log := u.logger(ctx, accountID, "")

	var acc *model.Account
	err := withAccountLock(ctx, u.locker, u.settings.LockTTL, log, accountID, func(ctx context.Context) error {
		current, err := u.accounts.FindByID(ctx, repository.NoTX, accountID)
		if err != nil {
			return err
		}
		if current.ProviderSubscriptionID != "" {
			u.suspend(ctx, log, current.ProviderSubscriptionID)
		}
		acc, err = u.cancel(ctx, log, accountID, "", "downgrade")
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// cancel returns the account to FREE and records a zero-amount cancelled
// invoice. A non-empty expectSub aborts when the account moved on meanwhile.
func (u *subscriptionUC) cancel(ctx context.Context, log *zerolog.Logger, accountID, expectSub, via string) (*model.Account, error) {
	var prevTier model.Tier
	var prevPlan model.PlanType
	now := u.now()
	acc, err := mutateAccount(ctx, u.accounts, accountID, func(a *model.Account) error {
		if expectSub != "" && a.ProviderSubscriptionID != expectSub {
			return errUnchanged
		}
		prevTier, prevPlan = a.Tier, a.Plan
		a.ApplyFree(now)
		return nil
	})
	if err != nil {
		return acc, err
	}

	metrics.IncSubscriptionTransition(string(prevTier), string(model.TierFree), via)
	log.Info().Str("from_tier", string(prevTier)).Str("from_plan", string(prevPlan)).Msg("account downgraded to free")

	u.issue(ctx, log, &model.Invoice{
		AccountID:    accountID,
		Amount:       decimal.Zero,
		Currency:     model.DefaultCurrency,
		Tier:         model.TierFree,
		Plan:         model.PlanNone,
		PreviousTier: prevTier,
		PreviousPlan: prevPlan,
		IssuedAt:     now,
		Status:       model.InvoiceStatusCancelled,
	})
	return acc, nil
}

func (u *subscriptionUC) UpdatePaymentMethodURL(ctx context.Context, accountID, returnURL string) (string, error) {
	if accountID == "" {
		return "", domain.ErrInvalidArgument
	}
	acc, err := u.accounts.FindByID(ctx, repository.NoTX, accountID)
	if err != nil {
		return "", err
	}
	if acc.ProviderSubscriptionID == "" {
		return "", fmt.Errorf("account %s has no subscription: %w", accountID, domain.ErrInvalidState)
	}
	if returnURL == "" {
		returnURL = u.settings.BaseURL + "/billing"
	}

	sub, err := u.gateway.GetSubscription(ctx, acc.ProviderSubscriptionID)
	if err != nil && !domain.IsResourceNotFound(err) {
		return "", gatewayFailure("get subscription", err)
	}
	if sub != nil {
		if href := sub.LinkHref("edit"); href != "" {
			return withQuery(href, "return_url", returnURL), nil
		}
	}
	return u.gateway.ManageURL(acc.ProviderSubscriptionID, returnURL), nil
}

func withQuery(raw, key, value string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := parsed.Query()
	q.Set(key, value)
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

func (u *subscriptionUC) ListTransactions(ctx context.Context, accountID string, from, to time.Time) ([]model.ProviderTransaction, error) {
	if accountID == "" {
		return nil, domain.ErrInvalidArgument
	}
	acc, err := u.accounts.FindByID(ctx, repository.NoTX, accountID)
	if err != nil {
		return nil, err
	}
	if acc.ProviderSubscriptionID == "" {
		return []model.ProviderTransaction{}, nil
	}
	if to.IsZero() {
		to = u.now()
	}
	if from.IsZero() {
		from = to.Add(-transactionLookback)
	}
	if from.After(to) {
		return nil, domain.ErrInvalidArgument
	}

	txs, err := u.gateway.ListTransactions(ctx, acc.ProviderSubscriptionID, from, to)
	if err != nil {
		if domain.IsResourceNotFound(err) {
			return []model.ProviderTransaction{}, nil
		}
		return nil, gatewayFailure("list transactions", err)
	}
	if txs == nil {
		txs = []model.ProviderTransaction{}
	}
	return txs, nil
}

func (u *subscriptionUC) ReconcileAccount(ctx context.Context, accountID string) (bool, error) {
	acc, err := u.accounts.FindByID(ctx, repository.NoTX, accountID)
	if err != nil {
		return false, err
	}
	if !acc.Tier.Paid() || acc.ProviderSubscriptionID == "" {
		return false, nil
	}
	subID := acc.ProviderSubscriptionID
	log := u.logger(ctx, accountID, subID)

	sub, err := u.gateway.GetSubscription(ctx, subID)
	if err != nil {
		if domain.IsResourceNotFound(err) {
			log.Warn().Msg("provider does not know the subscription, leaving account as is")
			return false, nil
		}
		return false, gatewayFailure("get subscription", err)
	}
	if !model.Terminated(sub.Status) {
		return false, nil
	}

	changed := false
	err = withAccountLock(ctx, u.locker, u.settings.LockTTL, log, accountID, func(ctx context.Context) error {
		_, err := u.cancel(ctx, log, accountID, subID, "sync")
		if errors.Is(err, errUnchanged) {
			return nil
		}
		changed = err == nil
		return err
	})
	if err != nil {
		return false, err
	}
	if changed {
		log.Info().Str("provider_status", sub.Status).Msg("account reconciled with provider")
	}
	return changed, nil
}
