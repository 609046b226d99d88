package usecase

import (
	"context"
)

// SubscriptionReconciler is what background workers need from the coordinator.
type SubscriptionReconciler interface {
	ReconcileAccount(ctx context.Context, accountID string) (changed bool, err error)
}
