package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
	InvoiceStatusRefunded  InvoiceStatus = "refunded"
	InvoiceStatusFailed    InvoiceStatus = "failed"
)

// InvoiceTaxRate is stamped on every invoice; tax is not computed.
const InvoiceTaxRate = "0"

// Invoice is an append-only billing record for a tier transition.
type Invoice struct {
	ID                     string // ULID
	AccountID              string
	Number                 string // INV-YYYYMM-NNNN
	Amount                 decimal.Decimal
	Currency               string
	Tier                   Tier
	Plan                   PlanType
	PreviousTier           Tier
	PreviousPlan           PlanType
	Description            string
	IssuedAt               time.Time
	Status                 InvoiceStatus
	ProviderSubscriptionID string
	ProviderTransactionID  string
	TaxRate                string
}

// InvoiceNumberPrefix is the bucket prefix for the UTC month of t.
func InvoiceNumberPrefix(t time.Time) string {
	return "INV-" + t.UTC().Format("200601")
}

// FormatInvoiceNumber renders the seq-th number of a bucket.
func FormatInvoiceNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%04d", prefix, seq)
}

// InvoiceDescription renders the human description of a transition.
func InvoiceDescription(prevTier Tier, prevPlan PlanType, tier Tier, plan PlanType) string {
	switch {
	case prevTier != "" && prevTier != tier:
		return fmt.Sprintf("Subscription change from %s to %s", PlanLabel(prevTier, prevPlan), PlanLabel(tier, plan))
	case tier == TierFree:
		return "Subscription cancelled - Downgrade to Free plan"
	case plan != PlanNone:
		return fmt.Sprintf("New subscription: %s Plan (%s)", plan, tier)
	default:
		return fmt.Sprintf("New subscription: %s Subscription", tier)
	}
}

// ProviderTransaction is a provider-side payment attached to a subscription.
type ProviderTransaction struct {
	ID          string
	Time        time.Time
	Amount      decimal.Decimal
	Currency    string
	Status      InvoiceStatus
	Description string
}

// TransactionStatus maps a provider transaction status onto invoice statuses.
func TransactionStatus(providerStatus string) InvoiceStatus {
	switch strings.ToUpper(providerStatus) {
	case "COMPLETED", "SUCCESS":
		return InvoiceStatusPaid
	case "PENDING":
		return InvoiceStatusPending
	case "FAILED", "DENIED":
		return InvoiceStatusFailed
	case "REFUNDED", "PARTIALLY_REFUNDED":
		return InvoiceStatusRefunded
	}
	return InvoiceStatusPending
}
