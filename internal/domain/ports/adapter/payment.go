package adapter

import (
	"context"
	"time"

	"ideaforge-billing/internal/domain/model"
)

// SuspendReason is sent to the provider when a subscription is suspended.
const SuspendReason = "User requested cancellation"

// PaymentGateway is the hex port for recurring-billing providers.
// Mutating calls are never retried by implementations; reads may be.
type PaymentGateway interface {
	Name() string

	CreateProduct(ctx context.Context, name, description string) (productID string, err error)
	CreatePlan(ctx context.Context, spec model.PlanSpec) (planID string, err error)
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (*model.CreatedSubscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*model.GatewaySubscription, error)
	GetPlan(ctx context.Context, planID string) (*model.GatewayPlan, error)
	// SuspendSubscription treats an unknown or already inactive subscription as success.
	SuspendSubscription(ctx context.Context, subscriptionID, reason string) error
	// ListTransactions returns an empty slice for an unknown subscription.
	ListTransactions(ctx context.Context, subscriptionID string, from, to time.Time) ([]model.ProviderTransaction, error)
	// ManageURL is where a subscriber updates their payment method when the
	// provider offers no edit link.
	ManageURL(subscriptionID, returnURL string) string
}
