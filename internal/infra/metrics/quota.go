package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(quotaDecisionsTotal) }

var quotaDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quota_decisions_total",
		Help: "Metered usage decisions by tier and result (allowed|rejected|reset).",
	},
	[]string{"tier", "result"},
)

func IncQuotaDecision(tier, result string) {
	quotaDecisionsTotal.WithLabelValues(norm(tier), norm(result)).Inc()
}
