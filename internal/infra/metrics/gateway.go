package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		gatewayCallsTotal,
		gatewayCallDuration,
	)
}

var (
	// op: token|create_product|create_plan|create_subscription|get_subscription|get_plan|suspend|transactions
	gatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_calls_total",
			Help: "Payment provider calls by operation and result.",
		},
		[]string{"provider", "op", "result"},
	)

	gatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_call_duration_seconds",
			Help:    "Payment provider call latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"provider", "op"},
	)
)

func ObserveGatewayCall(provider, op string, started time.Time, err error) {
	gatewayCallsTotal.WithLabelValues(norm(provider), norm(op), resultLabel(err)).Inc()
	gatewayCallDuration.WithLabelValues(norm(provider), norm(op)).Observe(time.Since(started).Seconds())
}
