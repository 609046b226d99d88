package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		analysisCallsTotal,
		analysisLatencyMs,
	)
}

var (
	analysisCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_calls_total",
			Help: "Idea analysis calls by provider, kind and result.",
		},
		[]string{"provider", "kind", "result"},
	)

	analysisLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_calls_latency_ms",
			Help:    "Idea analysis latency distribution in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		},
		[]string{"provider", "kind"},
	)
)

func ObserveAnalysis(provider, kind string, started time.Time, err error) {
	analysisCallsTotal.WithLabelValues(norm(provider), norm(kind), resultLabel(err)).Inc()
	analysisLatencyMs.WithLabelValues(norm(provider), norm(kind)).Observe(float64(time.Since(started).Milliseconds()))
}
