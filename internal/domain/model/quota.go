package model

import (
	"fmt"
	"math"
	"time"
)

// Cost is the quota weight of a metered operation.
type Cost float64

const (
	CostAnalysis Cost = 1
	CostImprove  Cost = 0.5
)

// DefaultFreeLimit is the FREE tier budget per usage window.
const DefaultFreeLimit = 1.0

func (c Cost) Valid() bool { return c > 0 && !math.IsInf(float64(c), 0) && !math.IsNaN(float64(c)) }

// QuotaDecision is the outcome of a consume call.
type QuotaDecision struct {
	Allowed   bool
	Used      float64
	Limit     float64
	Remaining float64
	Unlimited bool
	ResetAt   time.Time
	Message   string

	// Charged and PreviousResetAt let a failed operation undo this charge.
	Charged         Cost
	PreviousResetAt time.Time
}

// QuotaStatus is a read-only snapshot of an account's budget.
type QuotaStatus struct {
	Tier      Tier
	Used      float64
	Limit     float64
	Remaining float64
	Unlimited bool
	ResetAt   time.Time
}

// QuotaResetMessage tells a FREE account when it may try again.
func QuotaResetMessage(resetAt, now time.Time) string {
	const base = "Free plan limit reached"
	left := resetAt.Sub(now)
	days := int64(left / (24 * time.Hour))
	hours := int64(math.Ceil(float64(left) / float64(time.Hour)))
	switch {
	case days >= 1:
		return fmt.Sprintf("%s. Next validation available in %d %s", base, days, plural(days, "day"))
	case hours > 0:
		return fmt.Sprintf("%s. Next validation available in %d %s", base, hours, plural(hours, "hour"))
	default:
		return base + ". Next validation available soon"
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
