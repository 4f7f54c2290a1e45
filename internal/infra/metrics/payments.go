package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		transactionsTotal,
		paymentsRevenueTotal,
		callbacksTotal,
	)
}

var (
	transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transactions_total",
			Help: "Payment transactions by terminal status (completed/failed).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of completed payments, in KES.",
		},
	)

	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Provider callbacks by processing outcome.",
		},
		[]string{"outcome"}, // completed, failed, duplicate, not_found, malformed, receipt_missing, orphaned
	)
)

func IncTransaction(status string) {
	transactionsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(amount float64) {
	paymentsRevenueTotal.Add(amount)
}

func IncCallback(outcome string) {
	callbacksTotal.WithLabelValues(norm(outcome)).Inc()
}
