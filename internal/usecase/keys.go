package usecase

import (
	"fmt"

	"ideaforge-billing/internal/domain/model"
)

// Cache key layout shared with operators inspecting Redis.
func planKey(tier model.Tier, plan model.PlanType) string {
	return fmt.Sprintf("paypal_plan:%s:%s", plan, tier)
}

func planDetailsKey(planID string) string {
	return "paypal_plan_details:" + planID
}

func pendingKey(subscriptionID string) string {
	return "paypal_subscription:" + subscriptionID
}

func accountLockKey(accountID string) string {
	return "lock:account:" + accountID
}
