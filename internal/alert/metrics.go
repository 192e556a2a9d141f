// AngelaMos | 2026
// metrics.go

package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "storefront",
	Subsystem: "alert",
	Name:      "deliveries_total",
	Help:      "Alert deliveries by channel and outcome.",
}, []string{"channel", "outcome"})
