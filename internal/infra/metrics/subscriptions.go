package metrics

import (
	"telegram-subscription-bot/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsCreatedTotal,
		subscriptionsExpiredTotal,
		subscriptionsTotal,
	)
}

var (
	subscriptionsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_created_total",
			Help: "Subscriptions created, labeled by package tier.",
		},
		[]string{"tier"},
	)

	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Total number of subscriptions processed by the expiry sweep.",
		},
	)

	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by status.",
		},
		[]string{"status"}, // 'active', 'expired', 'cancelled'
	)
)

func IncSubscriptionCreated(tier model.PackageTier) {
	subscriptionsCreatedTotal.WithLabelValues(string(tier)).Inc()
}

func IncSubscriptionsExpired(count int) {
	subscriptionsExpiredTotal.Add(float64(count))
}

func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	statuses := []model.SubscriptionStatus{
		model.SubscriptionStatusActive,
		model.SubscriptionStatusExpired,
		model.SubscriptionStatusCancelled,
	}
	for _, status := range statuses {
		if count, ok := counts[status]; ok {
			subscriptionsTotal.WithLabelValues(string(status)).Set(float64(count))
		}
	}
}
