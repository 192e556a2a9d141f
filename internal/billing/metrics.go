// AngelaMos | 2026
// metrics.go

package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Stripe webhook deliveries by event type and status.",
	}, []string{"event_type", "status"})

	webhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing time.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "billing",
		Name:      "reconciliations_total",
		Help:      "Subscription reconciliations by source and outcome.",
	}, []string{"source", "outcome"})

	periodResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "billing",
		Name:      "period_resolutions_total",
		Help:      "Period end resolutions, by source.",
	}, []string{"source"})
)
