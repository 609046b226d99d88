//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ideaforge-billing/internal/domain"
)

// --- Account Model Tests ---

func TestNewAccount(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("should create a free account with a fresh window", func(t *testing.T) {
		acc, err := NewAccount("", "founder@example.com", "Ada Founder", now)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if acc.ID == "" {
			t.Error("expected account ID to be generated")
		}
		if acc.Tier != TierFree || acc.Plan != PlanNone {
			t.Errorf("expected FREE tier without plan, got %s/%q", acc.Tier, acc.Plan)
		}
		if !acc.UsageResetAt.Equal(now.Add(FreeWindow)) {
			t.Errorf("expected reset at %v, got %v", now.Add(FreeWindow), acc.UsageResetAt)
		}
		if err := acc.Validate(); err != nil {
			t.Errorf("expected valid account, got %v", err)
		}
	})

	t.Run("should fail with invalid email", func(t *testing.T) {
		acc, err := NewAccount("", "not-an-email", "x", now)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if acc != nil {
			t.Error("expected nil account on error")
		}
	})
}

func TestAccount_ApplyPlanAndFree(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	acc, _ := NewAccount("acc-1", "a@b.co", "", now)
	acc.UsageCount = 1

	if err := acc.ApplyPlan(TierYearly, PlanPro, "I-SUB", now); err != nil {
		t.Fatalf("ApplyPlan: %v", err)
	}
	if acc.UsageCount != 0 {
		t.Errorf("usage must reset on tier change, got %v", acc.UsageCount)
	}
	if !acc.UsageResetAt.Equal(now.Add(YearlyWindow)) {
		t.Errorf("yearly window expected, got %v", acc.UsageResetAt)
	}
	if acc.State() != SubscriptionStateActive {
		t.Errorf("expected ACTIVE state, got %s", acc.State())
	}

	if err := acc.ApplyPlan(TierFree, PlanBasic, "I-SUB", now); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("FREE is not a paid plan, got %v", err)
	}

	acc.ApplyFree(now)
	if acc.Plan != PlanNone || acc.ProviderSubscriptionID != "" || acc.Tier != TierFree {
		t.Errorf("expected cleared plan, got %+v", acc)
	}
	if err := acc.Validate(); err != nil {
		t.Errorf("expected valid account after downgrade, got %v", err)
	}
}

func TestAccount_Validate_PlanInvariant(t *testing.T) {
	acc := &Account{ID: "x", Tier: TierFree, Plan: PlanBasic}
	if err := acc.Validate(); err == nil {
		t.Error("FREE account with a plan must be invalid")
	}
	acc = &Account{ID: "x", Tier: TierMonthly}
	if err := acc.Validate(); err == nil {
		t.Error("paid account without a plan must be invalid")
	}
}

// --- Plan Catalog Tests ---

func TestPriceTable(t *testing.T) {
	cases := []struct {
		tier Tier
		plan PlanType
		want string
	}{
		{TierMonthly, PlanBasic, "19"},
		{TierMonthly, PlanPro, "49"},
		{TierYearly, PlanBasic, "190"},
		{TierYearly, PlanPro, "490"},
	}
	for _, tc := range cases {
		got, err := PriceFor(tc.tier, tc.plan)
		if err != nil {
			t.Fatalf("PriceFor(%s,%s): %v", tc.tier, tc.plan, err)
		}
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("PriceFor(%s,%s) = %s, want %s", tc.tier, tc.plan, got, tc.want)
		}
		plan, ok := ClassifyPrice(tc.tier, got)
		if !ok || plan != tc.plan {
			t.Errorf("ClassifyPrice(%s,%s) = %s,%v", tc.tier, got, plan, ok)
		}
	}

	if _, err := PriceFor(TierFree, PlanBasic); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("FREE must not be billable, got %v", err)
	}
	if _, ok := ClassifyPrice(TierMonthly, decimal.RequireFromString("20.00")); ok {
		t.Error("unknown price must not classify")
	}
	if p, ok := ClassifyPrice(TierMonthly, decimal.RequireFromString("49.00")); !ok || p != PlanPro {
		t.Errorf("provider formatted price must classify exactly, got %s,%v", p, ok)
	}
}

func TestTierParsing(t *testing.T) {
	if tier, err := ParseTier(" monthly "); err != nil || tier != TierMonthly {
		t.Errorf("ParseTier: %s %v", tier, err)
	}
	if _, err := ParseTier("weekly"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if tier, ok := TierForInterval("year"); !ok || tier != TierYearly {
		t.Errorf("TierForInterval(year) = %s,%v", tier, ok)
	}
	if _, err := TierFree.Interval(); err == nil {
		t.Error("FREE has no interval")
	}
}

// --- Invoice Model Tests ---

func TestInvoiceNumbering(t *testing.T) {
	issued := time.Date(2025, 1, 31, 23, 30, 0, 0, time.UTC)
	prefix := InvoiceNumberPrefix(issued)
	if prefix != "INV-202501" {
		t.Fatalf("prefix = %s", prefix)
	}
	if got := FormatInvoiceNumber(prefix, 7); got != "INV-202501-0007" {
		t.Errorf("FormatInvoiceNumber = %s", got)
	}
	if got := FormatInvoiceNumber(prefix, 12345); got != "INV-202501-12345" {
		t.Errorf("overflow must not truncate, got %s", got)
	}
}

func TestInvoiceDescription(t *testing.T) {
	cases := []struct {
		name           string
		prevTier, tier Tier
		prevPlan, plan PlanType
		want           string
	}{
		{"upgrade from free", TierFree, TierMonthly, PlanNone, PlanBasic, "Subscription change from Free to BASIC (MONTHLY)"},
		{"downgrade", TierYearly, TierFree, PlanPro, PlanNone, "Subscription change from PRO (YEARLY) to Free"},
		{"same tier plan swap", TierMonthly, TierMonthly, PlanBasic, PlanPro, "New subscription: PRO Plan (MONTHLY)"},
		{"free to free", TierFree, TierFree, PlanNone, PlanNone, "Subscription cancelled - Downgrade to Free plan"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := InvoiceDescription(tc.prevTier, tc.prevPlan, tc.tier, tc.plan); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTransactionStatus(t *testing.T) {
	cases := map[string]InvoiceStatus{
		"COMPLETED":          InvoiceStatusPaid,
		"success":            InvoiceStatusPaid,
		"PENDING":            InvoiceStatusPending,
		"DENIED":             InvoiceStatusFailed,
		"PARTIALLY_REFUNDED": InvoiceStatusRefunded,
		"WHATEVER":           InvoiceStatusPending,
	}
	for in, want := range cases {
		if got := TransactionStatus(in); got != want {
			t.Errorf("TransactionStatus(%s) = %s, want %s", in, got, want)
		}
	}
}

// --- Quota Message Tests ---

func TestQuotaResetMessage(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		left time.Duration
		want string
	}{
		{47 * time.Hour, "Free plan limit reached. Next validation available in 1 day"},
		{49 * time.Hour, "Free plan limit reached. Next validation available in 2 days"},
		{90 * time.Minute, "Free plan limit reached. Next validation available in 2 hours"},
		{10 * time.Minute, "Free plan limit reached. Next validation available in 1 hour"},
		{0, "Free plan limit reached. Next validation available soon"},
	}
	for _, tc := range cases {
		if got := QuotaResetMessage(now.Add(tc.left), now); got != tc.want {
			t.Errorf("left=%v: got %q, want %q", tc.left, got, tc.want)
		}
	}
}

func TestNormalizeIdea(t *testing.T) {
	if _, err := NormalizeIdea("  short "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	got, err := NormalizeIdea("  a marketplace for used lab gear  ")
	if err != nil || got != "a marketplace for used lab gear" {
		t.Errorf("NormalizeIdea = %q, %v", got, err)
	}
}

func TestProviderStatus(t *testing.T) {
	if !Activatable("approval_pending") || !Activatable(ProviderStatusActive) {
		t.Error("ACTIVE and APPROVAL_PENDING must be activatable")
	}
	if Activatable(ProviderStatusSuspended) {
		t.Error("SUSPENDED must not be activatable")
	}
	sub := &GatewaySubscription{Links: []Link{{Rel: "self", Href: "s"}, {Rel: "edit", Href: "e"}}}
	if got := sub.LinkHref("approve", "edit"); got != "e" {
		t.Errorf("LinkHref fallback = %q", got)
	}
}
