package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Provider-side subscription statuses.
const (
	ProviderStatusApprovalPending = "APPROVAL_PENDING"
	ProviderStatusApproved        = "APPROVED"
	ProviderStatusActive          = "ACTIVE"
	ProviderStatusSuspended       = "SUSPENDED"
	ProviderStatusCancelled       = "CANCELLED"
	ProviderStatusExpired         = "EXPIRED"
)

// Activatable reports whether a provider subscription may be captured.
func Activatable(status string) bool {
	switch strings.ToUpper(status) {
	case ProviderStatusActive, ProviderStatusApprovalPending:
		return true
	}
	return false
}

// Terminated reports whether a provider subscription no longer bills.
func Terminated(status string) bool {
	switch strings.ToUpper(status) {
	case ProviderStatusCancelled, ProviderStatusExpired, ProviderStatusSuspended:
		return true
	}
	return false
}

// PendingSubscription binds a freshly created provider subscription to the
// account and plan that requested it until it is captured.
type PendingSubscription struct {
	AccountID string          `json:"accountId"`
	Tier      Tier            `json:"tier"`
	PlanType  PlanType        `json:"planType"`
	Amount    decimal.Decimal `json:"amount"`
	PlanID    string          `json:"planId"`
}

// Link is a provider HATEOAS link.
type Link struct {
	Rel    string
	Href   string
	Method string
}

// GatewaySubscription is the provider's subscription object.
type GatewaySubscription struct {
	ID     string
	Status string
	PlanID string
	Links  []Link
}

// LinkHref returns the href of the first link whose rel matches one of rels, in order.
func (s *GatewaySubscription) LinkHref(rels ...string) string {
	for _, rel := range rels {
		for _, l := range s.Links {
			if strings.EqualFold(l.Rel, rel) {
				return l.Href
			}
		}
	}
	return ""
}

// BillingCycle is a single provider billing cycle.
type BillingCycle struct {
	IntervalUnit  string
	IntervalCount int
	Price         decimal.Decimal
	Currency      string
}

// GatewayPlan is the provider's plan object.
type GatewayPlan struct {
	ID            string
	ProductID     string
	Status        string
	BillingCycles []BillingCycle
}

// PlanSpec describes a provider plan to create.
type PlanSpec struct {
	ProductID     string
	Name          string
	Description   string
	Amount        decimal.Decimal
	Currency      string
	IntervalUnit  IntervalUnit
	IntervalCount int
}

// SubscriptionRequest describes a provider subscription to create.
type SubscriptionRequest struct {
	PlanID          string
	ReturnURL       string
	CancelURL       string
	SubscriberEmail string
	SubscriberName  string
}

// CreatedSubscription is what the provider returns for a new subscription.
type CreatedSubscription struct {
	ID          string
	Status      string
	ApprovalURL string
}

// Checkout is handed back to the client after initiating a subscription.
type Checkout struct {
	SubscriptionID string
	ApprovalURL    string
}
