package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"ideaforge-billing/internal/domain"
)

const (
	MonthlyWindow = 30 * 24 * time.Hour
	YearlyWindow  = 365 * 24 * time.Hour
	FreeWindow    = 2 * 24 * time.Hour
	// DowngradeWindow is the usage window granted when an account returns to FREE.
	DowngradeWindow = 30 * 24 * time.Hour
)

// Account is the per-user billing document.
// Plan is set iff Tier != FREE. Version increments on every save.
type Account struct {
	ID                     string
	Email                  string
	Name                   string
	Tier                   Tier
	Plan                   PlanType
	ProviderSubscriptionID string
	UsageCount             float64
	UsageResetAt           time.Time
	Version                int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewAccount creates a FREE account with a fresh usage window.
func NewAccount(id, email, name string, now time.Time) (*Account, error) {
	if id == "" {
		id = uuid.NewString()
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidArgument
	}
	return &Account{
		ID:           id,
		Email:        email,
		Name:         strings.TrimSpace(name),
		Tier:         TierFree,
		UsageResetAt: now.Add(FreeWindow),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (a *Account) IsZero() bool { return a == nil || a.ID == "" }

// Validate checks the tier/plan pairing.
func (a *Account) Validate() error {
	if a.IsZero() || !a.Tier.Valid() || a.UsageCount < 0 {
		return domain.ErrInvalidArgument
	}
	if a.Tier == TierFree && a.Plan != PlanNone {
		return domain.ErrInvalidArgument
	}
	if a.Tier.Paid() && !a.Plan.Valid() {
		return domain.ErrInvalidArgument
	}
	return nil
}

// ApplyPlan moves the account onto a paid plan and opens the tier's usage window.
func (a *Account) ApplyPlan(tier Tier, plan PlanType, subscriptionID string, now time.Time) error {
	if !tier.Paid() || !plan.Valid() || subscriptionID == "" {
		return domain.ErrInvalidArgument
	}
	window := MonthlyWindow
	if tier == TierYearly {
		window = YearlyWindow
	}
	a.Tier = tier
	a.Plan = plan
	a.ProviderSubscriptionID = subscriptionID
	a.UsageCount = 0
	a.UsageResetAt = now.Add(window)
	a.UpdatedAt = now
	return nil
}

// ApplyFree returns the account to FREE.
func (a *Account) ApplyFree(now time.Time) {
	a.Tier = TierFree
	a.Plan = PlanNone
	a.ProviderSubscriptionID = ""
	a.UsageCount = 0
	a.UsageResetAt = now.Add(DowngradeWindow)
	a.UpdatedAt = now
}

// SubscriptionState is the coordinator's view of an account.
type SubscriptionState string

const (
	SubscriptionStateNone   SubscriptionState = "NONE"
	SubscriptionStateActive SubscriptionState = "ACTIVE"
)

func (a *Account) State() SubscriptionState {
	if a.Tier.Paid() && a.ProviderSubscriptionID != "" {
		return SubscriptionStateActive
	}
	return SubscriptionStateNone
}
