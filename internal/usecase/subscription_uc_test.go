//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/repository"
	"ideaforge-billing/internal/usecase"
)

type subFixture struct {
	accounts *MockAccountRepo
	invoices *MockInvoiceRepo
	gw       *MockGateway
	cache    *MockCache
	locker   *MockLocker
	clock    *fixedClock
	plans    usecase.PlanUseCase
	uc       usecase.SubscriptionUseCase
}

func newSubFixture(logger *zerolog.Logger) *subFixture {
	f := &subFixture{
		accounts: NewMockAccountRepo(),
		invoices: NewMockInvoiceRepo(),
		gw:       NewMockGateway(),
		cache:    NewMockCache(),
		locker:   NewMockLocker(),
		clock:    newClock(t0),
	}
	f.plans = usecase.NewPlanUseCase(f.gw, f.cache, 0, logger)
	invoices := usecase.NewInvoiceUseCase(f.invoices, NewMockTxManager(), 0, logger, usecase.WithClock(f.clock.Now))
	f.uc = usecase.NewSubscriptionUseCase(
		f.accounts, f.plans, invoices, f.gw, f.cache, f.locker,
		usecase.SubscriptionSettings{BaseURL: "https://app.test/"},
		logger, usecase.WithClock(f.clock.Now),
	)
	return f
}

func TestSubscriptionUseCase_CreateSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("should create a provider subscription and remember it as pending", func(t *testing.T) {
		// --- Arrange ---
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))

		// --- Act ---
		checkout, err := f.uc.CreateSubscription(ctx, "acc-1", model.TierMonthly, model.PlanPro)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if checkout.SubscriptionID != "I-SUB1" || checkout.ApprovalURL == "" {
			t.Errorf("unexpected checkout %+v", checkout)
		}
		req := f.gw.Calls.CreateSubscription[0]
		if req.ReturnURL != "https://app.test/billing/payment/return" || req.CancelURL != "https://app.test/billing/payment/cancel" {
			t.Errorf("unexpected callback URLs %+v", req)
		}
		if req.SubscriberEmail != "acc-1@example.com" || req.PlanID != "P-1" {
			t.Errorf("unexpected request %+v", req)
		}

		var pending model.PendingSubscription
		if !f.cache.Get(ctx, "paypal_subscription:I-SUB1", &pending) {
			t.Fatal("expected pending subscription in cache")
		}
		if pending.AccountID != "acc-1" || pending.Tier != model.TierMonthly || pending.PlanType != model.PlanPro || !pending.Amount.Equal(price("49")) {
			t.Errorf("unexpected pending %+v", pending)
		}
		if ttl := f.cache.ttl("paypal_subscription:I-SUB1"); ttl != 24*time.Hour {
			t.Errorf("expected 24h pending ttl, got %v", ttl)
		}
		if f.accounts.SaveCalls != 0 {
			t.Error("creating a subscription must not touch the account")
		}
	})

	t.Run("should fail for an unknown account", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		if _, err := f.uc.CreateSubscription(ctx, "ghost", model.TierMonthly, model.PlanBasic); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if len(f.gw.Calls.CreateSubscription) != 0 {
			t.Error("gateway must not be called")
		}
	})

	t.Run("should fail when the provider gives no approval link", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		f.gw.CreateSubscriptionFunc = func(ctx context.Context, req model.SubscriptionRequest) (*model.CreatedSubscription, error) {
			return &model.CreatedSubscription{ID: "I-X", Status: "APPROVAL_PENDING"}, nil
		}
		if _, err := f.uc.CreateSubscription(ctx, "acc-1", model.TierMonthly, model.PlanBasic); !errors.Is(err, domain.ErrGateway) {
			t.Errorf("expected ErrGateway, got %v", err)
		}
	})
}

func TestSubscriptionUseCase_CaptureSubscription(t *testing.T) {
	ctx := context.Background()

	pendingFor := func(f *subFixture, subID, accountID string, tier model.Tier, plan model.PlanType) {
		amount, _ := model.PriceFor(tier, plan)
		f.cache.Set(ctx, "paypal_subscription:"+subID, model.PendingSubscription{
			AccountID: accountID, Tier: tier, PlanType: plan, Amount: amount, PlanID: "P-1",
		}, time.Hour)
	}

	t.Run("should activate the plan, issue a paid invoice and drop the pending record", func(t *testing.T) {
		// --- Arrange ---
		f := newSubFixture(newTestLogger())
		acc := freeAccount("acc-1")
		acc.UsageCount = 1
		f.accounts.seed(acc)
		pendingFor(f, "I-SUB", "acc-1", model.TierMonthly, model.PlanPro)

		// --- Act ---
		got, err := f.uc.CaptureSubscription(ctx, "acc-1", "I-SUB")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if got.Tier != model.TierMonthly || got.Plan != model.PlanPro || got.ProviderSubscriptionID != "I-SUB" {
			t.Errorf("unexpected account %+v", got)
		}
		if got.UsageCount != 0 || !got.UsageResetAt.Equal(t0.Add(30*24*time.Hour)) {
			t.Errorf("expected a fresh 30 day window, got usage=%v reset=%v", got.UsageCount, got.UsageResetAt)
		}
		invs := f.invoices.all()
		if len(invs) != 1 {
			t.Fatalf("expected one invoice, got %d", len(invs))
		}
		inv := invs[0]
		if inv.Number != "INV-202503-0001" || inv.Status != model.InvoiceStatusPaid || !inv.Amount.Equal(price("49")) {
			t.Errorf("unexpected invoice %+v", inv)
		}
		if inv.PreviousTier != model.TierFree || inv.Description != "Subscription change from Free to PRO (MONTHLY)" {
			t.Errorf("unexpected transition on invoice %+v", inv)
		}
		if f.cache.has("paypal_subscription:I-SUB") {
			t.Error("pending record must be deleted after capture")
		}
		if len(f.gw.Calls.GetSubscription) != 1 {
			t.Error("capture must always check the provider status")
		}
		if f.locker.Locks != 1 || f.locker.Unlocks != 1 {
			t.Errorf("expected balanced account lock, got %d/%d", f.locker.Locks, f.locker.Unlocks)
		}
	})

	t.Run("should open a 365 day window for yearly plans", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		pendingFor(f, "I-Y", "acc-1", model.TierYearly, model.PlanBasic)

		got, err := f.uc.CaptureSubscription(ctx, "acc-1", "I-Y")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !got.UsageResetAt.Equal(t0.Add(365 * 24 * time.Hour)) {
			t.Errorf("expected a 365 day window, got %v", got.UsageResetAt)
		}
	})

	t.Run("should be idempotent when captured twice", func(t *testing.T) {
		// --- Arrange ---
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		pendingFor(f, "I-SUB", "acc-1", model.TierMonthly, model.PlanBasic)

		// --- Act ---
		first, err := f.uc.CaptureSubscription(ctx, "acc-1", "I-SUB")
		if err != nil {
			t.Fatalf("first capture: %v", err)
		}
		f.clock.Advance(time.Hour)
		second, err := f.uc.CaptureSubscription(ctx, "acc-1", "I-SUB")

		// --- Assert ---
		if err != nil {
			t.Fatalf("second capture: %v", err)
		}
		if len(f.invoices.all()) != 1 {
			t.Errorf("expected exactly one invoice, got %d", len(f.invoices.all()))
		}
		if second.Version != first.Version || !second.UsageResetAt.Equal(first.UsageResetAt) {
			t.Errorf("second capture must not change the account: %+v vs %+v", first, second)
		}
	})

	t.Run("should produce one invoice under concurrent captures", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		pendingFor(f, "I-SUB", "acc-1", model.TierMonthly, model.PlanBasic)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := f.uc.CaptureSubscription(ctx, "acc-1", "I-SUB"); err != nil {
					t.Errorf("capture: %v", err)
				}
			}()
		}
		wg.Wait()
		if n := len(f.invoices.all()); n != 1 {
			t.Errorf("expected one invoice, got %d", n)
		}
	})

	t.Run("should refuse a capture by a different account", func(t *testing.T) {
		// --- Arrange ---
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		f.accounts.seed(freeAccount("acc-2"))
		pendingFor(f, "I-SUB", "acc-1", model.TierMonthly, model.PlanPro)

		// --- Act ---
		_, err := f.uc.CaptureSubscription(ctx, "acc-2", "I-SUB")

		// --- Assert ---
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if got := f.accounts.get("acc-2"); got.Tier != model.TierFree {
			t.Error("caller account must stay untouched")
		}
		if !f.cache.has("paypal_subscription:I-SUB") {
			t.Error("pending record must survive a refused capture")
		}
	})

	t.Run("should refuse a second account capturing an already captured subscription", func(t *testing.T) {
		// --- Arrange ---
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		f.accounts.seed(freeAccount("acc-2"))
		checkout, err := f.uc.CreateSubscription(ctx, "acc-1", model.TierMonthly, model.PlanPro)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := f.uc.CaptureSubscription(ctx, "acc-1", checkout.SubscriptionID); err != nil {
			t.Fatalf("owner capture: %v", err)
		}

		// --- Act ---
		_, err = f.uc.CaptureSubscription(ctx, "acc-2", checkout.SubscriptionID)

		// --- Assert ---
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		got := f.accounts.get("acc-2")
		if got.Tier != model.TierFree || got.ProviderSubscriptionID != "" {
			t.Errorf("caller account must stay free, got %+v", got)
		}
		if owner := f.accounts.get("acc-1"); owner.ProviderSubscriptionID != checkout.SubscriptionID {
			t.Errorf("owner must keep the subscription, got %+v", owner)
		}
		if _, err := f.uc.CaptureSubscription(ctx, "acc-1", checkout.SubscriptionID); err != nil {
			t.Errorf("owner recapture must stay idempotent, got %v", err)
		}
	})

	t.Run("should refuse subscriptions the provider has not approved", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		pendingFor(f, "I-SUB", "acc-1", model.TierMonthly, model.PlanPro)
		f.gw.GetSubscriptionFunc = func(ctx context.Context, id string) (*model.GatewaySubscription, error) {
			return &model.GatewaySubscription{ID: id, Status: model.ProviderStatusSuspended}, nil
		}

		_, err := f.uc.CaptureSubscription(ctx, "acc-1", "I-SUB")
		if !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
		if len(f.invoices.all()) != 0 || f.accounts.SaveCalls != 0 {
			t.Error("nothing may be written for an inactive subscription")
		}
	})

	t.Run("should map an unknown provider subscription to not found", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		f.gw.GetSubscriptionFunc = func(ctx context.Context, id string) (*model.GatewaySubscription, error) {
			return nil, &domain.GatewayError{Op: "get subscription", Status: 404, Name: "RESOURCE_NOT_FOUND"}
		}
		if _, err := f.uc.CaptureSubscription(ctx, "acc-1", "I-NOPE"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should classify from the provider plan when the pending record expired", func(t *testing.T) {
		// --- Arrange ---
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		f.gw.GetSubscriptionFunc = func(ctx context.Context, id string) (*model.GatewaySubscription, error) {
			return &model.GatewaySubscription{ID: id, Status: "APPROVAL_PENDING", PlanID: "P-REMOTE"}, nil
		}
		f.gw.GetPlanFunc = func(ctx context.Context, id string) (*model.GatewayPlan, error) {
			return &model.GatewayPlan{ID: id, BillingCycles: []model.BillingCycle{
				{IntervalUnit: "YEAR", IntervalCount: 1, Price: price("490.00"), Currency: "USD"},
			}}, nil
		}

		// --- Act ---
		got, err := f.uc.CaptureSubscription(ctx, "acc-1", "I-SUB")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if got.Tier != model.TierYearly || got.Plan != model.PlanPro {
			t.Errorf("expected YEARLY/PRO, got %s/%s", got.Tier, got.Plan)
		}
		if d, ok := f.plans.DescribePlan(ctx, "P-REMOTE"); !ok || d.PlanType != model.PlanPro {
			t.Error("classification must be remembered in the reverse catalog")
		}
	})

	t.Run("should prefer the reverse catalog over the provider", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		f.plans.RememberPlan(ctx, "P-KNOWN", model.PlanDetails{Tier: model.TierYearly, PlanType: model.PlanBasic, Amount: price("190")})
		f.gw.GetSubscriptionFunc = func(ctx context.Context, id string) (*model.GatewaySubscription, error) {
			return &model.GatewaySubscription{ID: id, Status: "ACTIVE", PlanID: "P-KNOWN"}, nil
		}

		got, err := f.uc.CaptureSubscription(ctx, "acc-1", "I-SUB")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if got.Tier != model.TierYearly || got.Plan != model.PlanBasic {
			t.Errorf("expected YEARLY/BASIC, got %s/%s", got.Tier, got.Plan)
		}
		if len(f.gw.Calls.GetPlan) != 0 {
			t.Error("provider plan lookup must be skipped on a catalog hit")
		}
	})

	t.Run("should fall back to the cheapest plan with a warning", func(t *testing.T) {
		// --- Arrange ---
		logs := &captureLogger{}
		f := newSubFixture(logs.Logger())
		f.accounts.seed(freeAccount("acc-1"))
		f.gw.GetSubscriptionFunc = func(ctx context.Context, id string) (*model.GatewaySubscription, error) {
			return &model.GatewaySubscription{ID: id, Status: "ACTIVE", PlanID: "P-ODD"}, nil
		}
		f.gw.GetPlanFunc = func(ctx context.Context, id string) (*model.GatewayPlan, error) {
			return &model.GatewayPlan{ID: id, BillingCycles: []model.BillingCycle{
				{IntervalUnit: "MONTH", IntervalCount: 1, Price: price("999.00"), Currency: "USD"},
			}}, nil
		}

		// --- Act ---
		got, err := f.uc.CaptureSubscription(ctx, "acc-1", "I-SUB")

		// --- Assert ---
		if err != nil {
			t.Fatalf("classification must never fail, got %v", err)
		}
		if got.Tier != model.TierMonthly || got.Plan != model.PlanBasic {
			t.Errorf("expected MONTHLY/BASIC, got %s/%s", got.Tier, got.Plan)
		}
		if !strings.Contains(logs.String(), `"level":"warn"`) || !strings.Contains(logs.String(), "cheapest plan") {
			t.Errorf("expected a warning, got logs: %s", logs.String())
		}
	})

	t.Run("should default to MONTHLY/BASIC when the subscription has no plan", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))

		got, err := f.uc.CaptureSubscription(ctx, "acc-1", "I-SUB")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if got.Tier != model.TierMonthly || got.Plan != model.PlanBasic {
			t.Errorf("expected MONTHLY/BASIC, got %s/%s", got.Tier, got.Plan)
		}
	})

	t.Run("should keep the activation when the invoice cannot be written", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		pendingFor(f, "I-SUB", "acc-1", model.TierMonthly, model.PlanPro)
		f.invoices.CreateFunc = func(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
			return errors.New("disk full")
		}

		got, err := f.uc.CaptureSubscription(ctx, "acc-1", "I-SUB")
		if err != nil {
			t.Fatalf("invoice failure must not propagate, got %v", err)
		}
		if got.Tier != model.TierMonthly {
			t.Errorf("expected activation to stick, got %s", got.Tier)
		}
	})
}

func TestSubscriptionUseCase_ChangePlanDirectly(t *testing.T) {
	ctx := context.Background()

	t.Run("should replace the subscription and invoice the change", func(t *testing.T) {
		// --- Arrange ---
		f := newSubFixture(newTestLogger())
		f.accounts.seed(paidAccount("acc-1", model.TierMonthly, model.PlanBasic, "I-OLD"))
		f.gw.SuspendFunc = func(ctx context.Context, id, reason string) error {
			return &domain.GatewayError{Op: "suspend", Status: 404, Name: "RESOURCE_NOT_FOUND"}
		}

		// --- Act ---
		got, err := f.uc.ChangePlanDirectly(ctx, "acc-1", model.TierYearly, model.PlanPro)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if len(f.gw.Calls.Suspend) != 1 || f.gw.Calls.Suspend[0] != "I-OLD" {
			t.Errorf("expected old subscription suspended, got %v", f.gw.Calls.Suspend)
		}
		if got.ProviderSubscriptionID != "I-SUB1" || got.Tier != model.TierYearly || got.Plan != model.PlanPro {
			t.Errorf("unexpected account %+v", got)
		}
		invs := f.invoices.all()
		if len(invs) != 1 || !invs[0].Amount.Equal(price("490")) || invs[0].PreviousPlan != model.PlanBasic {
			t.Errorf("unexpected invoices %+v", invs)
		}
		if invs[0].Description != "Subscription change from BASIC (MONTHLY) to PRO (YEARLY)" {
			t.Errorf("unexpected description %q", invs[0].Description)
		}
		if f.cache.has("paypal_subscription:I-SUB1") {
			t.Error("a direct change must not leave a pending record")
		}
	})

	t.Run("should proceed when suspending the old subscription fails", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(paidAccount("acc-1", model.TierMonthly, model.PlanBasic, "I-OLD"))
		f.gw.SuspendFunc = func(ctx context.Context, id, reason string) error {
			return &domain.GatewayError{Op: "suspend", Status: 500, Message: "boom"}
		}
		if _, err := f.uc.ChangePlanDirectly(ctx, "acc-1", model.TierMonthly, model.PlanPro); err != nil {
			t.Errorf("expected suspend failure to be tolerated, got %v", err)
		}
	})

	t.Run("should require an existing subscription", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		if _, err := f.uc.ChangePlanDirectly(ctx, "acc-1", model.TierMonthly, model.PlanPro); !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
		if len(f.gw.Calls.CreateSubscription) != 0 {
			t.Error("no subscription may be created")
		}
	})

	t.Run("should fail without touching the account when the provider refuses", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(paidAccount("acc-1", model.TierMonthly, model.PlanBasic, "I-OLD"))
		f.gw.CreateSubscriptionFunc = func(ctx context.Context, req model.SubscriptionRequest) (*model.CreatedSubscription, error) {
			return nil, &domain.GatewayError{Op: "create subscription", Status: 422, Name: "UNPROCESSABLE_ENTITY"}
		}
		_, err := f.uc.ChangePlanDirectly(ctx, "acc-1", model.TierMonthly, model.PlanPro)
		if !errors.Is(err, domain.ErrGateway) {
			t.Fatalf("expected ErrGateway, got %v", err)
		}
		if got := f.accounts.get("acc-1"); got.Plan != model.PlanBasic {
			t.Error("account must keep its plan")
		}
	})
}

func TestSubscriptionUseCase_DowngradeToFree(t *testing.T) {
	ctx := context.Background()

	t.Run("should clear the plan and record a cancelled zero invoice", func(t *testing.T) {
		// --- Arrange ---
		f := newSubFixture(newTestLogger())
		acc := paidAccount("acc-1", model.TierYearly, model.PlanPro, "I-SUB")
		acc.UsageCount = 12
		f.accounts.seed(acc)
		f.gw.SuspendFunc = func(ctx context.Context, id, reason string) error {
			return errors.New("timeout")
		}

		// --- Act ---
		got, err := f.uc.DowngradeToFree(ctx, "acc-1")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if got.Tier != model.TierFree || got.Plan != model.PlanNone || got.ProviderSubscriptionID != "" || got.UsageCount != 0 {
			t.Errorf("unexpected account %+v", got)
		}
		if !got.UsageResetAt.Equal(t0.Add(30 * 24 * time.Hour)) {
			t.Errorf("expected a 30 day window, got %v", got.UsageResetAt)
		}
		if len(f.gw.Calls.Suspend) != 1 {
			t.Error("expected a suspend attempt")
		}
		invs := f.invoices.all()
		if len(invs) != 1 {
			t.Fatalf("expected one invoice, got %d", len(invs))
		}
		if !invs[0].Amount.IsZero() || invs[0].Status != model.InvoiceStatusCancelled || invs[0].Tier != model.TierFree {
			t.Errorf("unexpected invoice %+v", invs[0])
		}
		if invs[0].Description != "Subscription change from PRO (YEARLY) to Free" {
			t.Errorf("unexpected description %q", invs[0].Description)
		}
	})

	t.Run("should still record a cancelled invoice for a free account", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		got, err := f.uc.DowngradeToFree(ctx, "acc-1")
		if err != nil || got.Tier != model.TierFree {
			t.Fatalf("unexpected result %+v, %v", got, err)
		}
		if len(f.gw.Calls.Suspend) != 0 {
			t.Error("no provider call expected without a subscription")
		}
		invs := f.invoices.all()
		if len(invs) != 1 {
			t.Fatalf("expected one invoice, got %d", len(invs))
		}
		if !invs[0].Amount.IsZero() || invs[0].Status != model.InvoiceStatusCancelled {
			t.Errorf("unexpected invoice %+v", invs[0])
		}
	})
}

func TestSubscriptionUseCase_PaymentMethodAndTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("should append the return url to the provider edit link", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(paidAccount("acc-1", model.TierMonthly, model.PlanBasic, "I-SUB"))
		f.gw.GetSubscriptionFunc = func(ctx context.Context, id string) (*model.GatewaySubscription, error) {
			return &model.GatewaySubscription{ID: id, Status: "ACTIVE", Links: []model.Link{
				{Rel: "edit", Href: "https://paypal.test/edit?ba=1"},
			}}, nil
		}
		got, err := f.uc.UpdatePaymentMethodURL(ctx, "acc-1", "https://app.test/settings")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if got != "https://paypal.test/edit?ba=1&return_url=https%3A%2F%2Fapp.test%2Fsettings" {
			t.Errorf("unexpected url %s", got)
		}
	})

	t.Run("should fall back to the provider manage page", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(paidAccount("acc-1", model.TierMonthly, model.PlanBasic, "I-SUB"))
		got, err := f.uc.UpdatePaymentMethodURL(ctx, "acc-1", "")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !strings.Contains(got, "/autopay/connect/I-SUB") || !strings.HasSuffix(got, "https://app.test/billing") {
			t.Errorf("unexpected url %s", got)
		}
	})

	t.Run("should need a subscription", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(freeAccount("acc-1"))
		if _, err := f.uc.UpdatePaymentMethodURL(ctx, "acc-1", ""); !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("should list provider transactions and treat unknown subscriptions as empty", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(paidAccount("acc-1", model.TierMonthly, model.PlanBasic, "I-SUB"))
		var gotFrom, gotTo time.Time
		f.gw.ListTransactionsFunc = func(ctx context.Context, id string, from, to time.Time) ([]model.ProviderTransaction, error) {
			gotFrom, gotTo = from, to
			return []model.ProviderTransaction{{ID: "TX-1", Amount: price("19"), Status: model.InvoiceStatusPaid}}, nil
		}
		txs, err := f.uc.ListTransactions(ctx, "acc-1", time.Time{}, time.Time{})
		if err != nil || len(txs) != 1 {
			t.Fatalf("unexpected result %+v, %v", txs, err)
		}
		if !gotTo.Equal(t0) || !gotFrom.Equal(t0.Add(-365*24*time.Hour)) {
			t.Errorf("unexpected default range %v..%v", gotFrom, gotTo)
		}

		f.gw.ListTransactionsFunc = func(ctx context.Context, id string, from, to time.Time) ([]model.ProviderTransaction, error) {
			return nil, &domain.GatewayError{Op: "list transactions", Status: 404, Name: "RESOURCE_NOT_FOUND"}
		}
		txs, err = f.uc.ListTransactions(ctx, "acc-1", time.Time{}, time.Time{})
		if err != nil || txs == nil || len(txs) != 0 {
			t.Errorf("expected empty list, got %+v, %v", txs, err)
		}
	})
}

func TestSubscriptionUseCase_ReconcileAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("should downgrade accounts whose provider subscription ended", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(paidAccount("acc-1", model.TierMonthly, model.PlanPro, "I-SUB"))
		f.gw.GetSubscriptionFunc = func(ctx context.Context, id string) (*model.GatewaySubscription, error) {
			return &model.GatewaySubscription{ID: id, Status: model.ProviderStatusCancelled}, nil
		}

		changed, err := f.uc.ReconcileAccount(ctx, "acc-1")
		if err != nil || !changed {
			t.Fatalf("expected a change, got %v, %v", changed, err)
		}
		if got := f.accounts.get("acc-1"); got.Tier != model.TierFree {
			t.Errorf("expected FREE, got %s", got.Tier)
		}
		if len(f.gw.Calls.Suspend) != 0 {
			t.Error("an ended subscription must not be suspended again")
		}
		invs := f.invoices.all()
		if len(invs) != 1 || invs[0].Status != model.InvoiceStatusCancelled {
			t.Errorf("expected a cancelled invoice, got %+v", invs)
		}
	})

	t.Run("should leave active and free accounts alone", func(t *testing.T) {
		f := newSubFixture(newTestLogger())
		f.accounts.seed(paidAccount("acc-1", model.TierMonthly, model.PlanPro, "I-SUB"))
		f.accounts.seed(freeAccount("acc-2"))

		for _, id := range []string{"acc-1", "acc-2"} {
			changed, err := f.uc.ReconcileAccount(ctx, id)
			if err != nil || changed {
				t.Errorf("%s: expected no change, got %v, %v", id, changed, err)
			}
		}
		if len(f.gw.Calls.GetSubscription) != 1 {
			t.Errorf("free accounts must not hit the provider, got %d calls", len(f.gw.Calls.GetSubscription))
		}
	})
}
