package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ideaforge-billing/internal/domain"
)

// Tier is the billing cadence of an account.
type Tier string

const (
	TierFree    Tier = "FREE"
	TierMonthly Tier = "MONTHLY"
	TierYearly  Tier = "YEARLY"
)

// PlanType is the feature/price bundle inside a paid tier. Empty means none.
type PlanType string

const (
	PlanNone  PlanType = ""
	PlanBasic PlanType = "BASIC"
	PlanPro   PlanType = "PRO"
)

const DefaultCurrency = "USD"

// IntervalUnit is the provider billing frequency unit.
type IntervalUnit string

const (
	IntervalMonth IntervalUnit = "MONTH"
	IntervalYear  IntervalUnit = "YEAR"
)

type planPrice struct {
	monthly decimal.Decimal
	yearly  decimal.Decimal
}

// prices must stay free of collisions within a tier; classification depends on it.
var prices = map[PlanType]planPrice{
	PlanBasic: {monthly: decimal.NewFromInt(19), yearly: decimal.NewFromInt(190)},
	PlanPro:   {monthly: decimal.NewFromInt(49), yearly: decimal.NewFromInt(490)},
}

// classificationOrder is the order price matching walks the table.
var classificationOrder = []PlanType{PlanPro, PlanBasic}

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierMonthly, TierYearly:
		return true
	}
	return false
}

func (t Tier) Paid() bool { return t == TierMonthly || t == TierYearly }

// Interval returns the provider interval unit for a paid tier.
func (t Tier) Interval() (IntervalUnit, error) {
	switch t {
	case TierMonthly:
		return IntervalMonth, nil
	case TierYearly:
		return IntervalYear, nil
	}
	return "", fmt.Errorf("tier %q has no billing interval: %w", t, domain.ErrInvalidArgument)
}

// TierForInterval maps a provider interval unit back to a tier.
func TierForInterval(unit string) (Tier, bool) {
	switch IntervalUnit(strings.ToUpper(unit)) {
	case IntervalMonth:
		return TierMonthly, true
	case IntervalYear:
		return TierYearly, true
	}
	return "", false
}

func (p PlanType) Valid() bool {
	_, ok := prices[p]
	return ok
}

// ParseTier is case-insensitive.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q: %w", s, domain.ErrInvalidArgument)
	}
	return t, nil
}

// ParsePlanType is case-insensitive.
func ParsePlanType(s string) (PlanType, error) {
	p := PlanType(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown plan type %q: %w", s, domain.ErrInvalidArgument)
	}
	return p, nil
}

// PriceFor looks up the static price of a paid (tier, plan) pair.
func PriceFor(tier Tier, plan PlanType) (decimal.Decimal, error) {
	pp, ok := prices[plan]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown plan type %q: %w", plan, domain.ErrInvalidArgument)
	}
	switch tier {
	case TierMonthly:
		return pp.monthly, nil
	case TierYearly:
		return pp.yearly, nil
	}
	return decimal.Zero, fmt.Errorf("tier %q is not billable: %w", tier, domain.ErrInvalidArgument)
}

// ClassifyPrice finds the plan whose price in tier equals amount exactly.
func ClassifyPrice(tier Tier, amount decimal.Decimal) (PlanType, bool) {
	for _, p := range classificationOrder {
		price, err := PriceFor(tier, p)
		if err != nil {
			continue
		}
		if price.Equal(amount) {
			return p, true
		}
	}
	return PlanNone, false
}

// CheapestPlan is the fallback when a provider plan cannot be classified.
func CheapestPlan() PlanType { return PlanBasic }

// PlanLabel renders "Free" or "PLAN (TIER)".
func PlanLabel(tier Tier, plan PlanType) string {
	if tier == TierFree || tier == "" {
		return "Free"
	}
	return fmt.Sprintf("%s (%s)", plan, tier)
}

// PlanDetails is the reverse catalog entry for a provider plan id.
type PlanDetails struct {
	Tier     Tier            `json:"tier"`
	PlanType PlanType        `json:"planType"`
	Amount   decimal.Decimal `json:"amount"`
}

// PlanRef is the forward catalog entry.
type PlanRef struct {
	PlanID string `json:"planId"`
}
