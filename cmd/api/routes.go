// AngelaMos | 2026
// routes.go

package main

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carterperez-dev/templates/storefront-billing/internal/billing"
	"github.com/carterperez-dev/templates/storefront-billing/internal/config"
	"github.com/carterperez-dev/templates/storefront-billing/internal/health"
	"github.com/carterperez-dev/templates/storefront-billing/internal/middleware"
	"github.com/carterperez-dev/templates/storefront-billing/internal/ops"
)

type routeDeps struct {
	Health   *health.Handler
	Billing  *billing.Handler
	Ops      *ops.Handler
	Verifier middleware.TokenVerifier
	Limiter  *middleware.RateLimiter
	Admin    config.AdminConfig
	Metrics  config.MetricsConfig
}

// mountRoutes registers liveness/readiness, metrics and the /v1 API. Bearer routes
// are rate limited per authenticated subject after the token is verified.
// The Stripe webhook authenticates by signature and has no budget.
func mountRoutes(router chi.Router, d routeDeps) {
	d.Health.RegisterRoutes(router)

	if d.Metrics.Enabled {
		router.Handle(d.Metrics.Path, promhttp.Handler())
	}

	authenticated := chi.Chain(
		middleware.Authenticator(d.Verifier),
		d.Limiter.Handler,
	).Handler
	adminOnly := middleware.RequireAdmin(d.Admin.Role, d.Admin.Emails)

	router.Route("/v1", func(r chi.Router) {
		d.Billing.RegisterRoutes(r, authenticated)
		d.Ops.RegisterRoutes(r, authenticated, adminOnly)
	})
}
