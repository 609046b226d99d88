package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		subscriptionTransitionsTotal,
		invoicesIssuedTotal,
		invoiceNumberConflictsTotal,
		invoicedAmountTotal,
	)
}

var (
	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Account tier transitions by previous and new tier.",
		},
		[]string{"from", "to", "via"}, // via: capture|change|downgrade|sync
	)

	invoicesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoices_issued_total",
			Help: "Invoices appended to the ledger by status.",
		},
		[]string{"status"},
	)

	invoiceNumberConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invoice_number_conflicts_total",
			Help: "Invoice inserts retried because the number was taken.",
		},
	)

	invoicedAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoiced_amount_total",
			Help: "Sum of invoiced amounts by currency.",
		},
		[]string{"currency"},
	)
)

func IncSubscriptionTransition(from, to, via string) {
	subscriptionTransitionsTotal.WithLabelValues(norm(from), norm(to), norm(via)).Inc()
}

func IncInvoiceIssued(status, currency string, amount decimal.Decimal) {
	invoicesIssuedTotal.WithLabelValues(norm(status)).Inc()
	f, _ := amount.Float64()
	if f > 0 {
		invoicedAmountTotal.WithLabelValues(norm(currency)).Add(f)
	}
}

func IncInvoiceNumberConflict() { invoiceNumberConflictsTotal.Inc() }
