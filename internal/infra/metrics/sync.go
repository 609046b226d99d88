package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		syncRunsTotal,
		syncAccountsTotal,
	)
}

var (
	syncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_sync_runs_total",
			Help: "Provider status sync runs by result.",
		},
		[]string{"result"},
	)

	// outcome: unchanged|changed|error
	syncAccountsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_sync_accounts_total",
			Help: "Accounts checked by the provider sync job, by outcome.",
		},
		[]string{"outcome"},
	)
)

func IncSyncRun(err error) { syncRunsTotal.WithLabelValues(resultLabel(err)).Inc() }

func IncSyncAccount(outcome string) { syncAccountsTotal.WithLabelValues(norm(outcome)).Inc() }
