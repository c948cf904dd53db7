package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueueItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emailgw_queue_items_total",
			Help: "Queue items processed by outcome and provider",
		},
		[]string{"outcome", "provider"}, // success|failed|skipped , gmail|outlook|smtp|unknown
	)

	QueueRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "emailgw_queue_run_seconds",
			Help:    "Duration of one queue processor run",
			Buckets: prometheus.DefBuckets,
		},
	)

	StaleRequeuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emailgw_stale_requeued_total",
			Help: "Items recovered from stuck processing state",
		},
	)

	RenewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emailgw_subscription_renewals_total",
			Help: "Mailbox subscription renewal attempts by outcome",
		},
		[]string{"outcome"}, // renewed|failed
	)

	TokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emailgw_token_refresh_total",
			Help: "OAuth access-token refresh attempts by outcome",
		},
		[]string{"outcome"}, // ok|error
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		QueueItemsTotal,
		QueueRunDuration,
		StaleRequeuedTotal,
		RenewalsTotal,
		TokenRefreshTotal,
	)
}
