// AngelaMos | 2026
// routes_test.go

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/storefront-billing/internal/billing"
	"github.com/carterperez-dev/templates/storefront-billing/internal/config"
	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
	"github.com/carterperez-dev/templates/storefront-billing/internal/health"
	"github.com/carterperez-dev/templates/storefront-billing/internal/middleware"
	"github.com/carterperez-dev/templates/storefront-billing/internal/ops"
)

type tokenTable map[string]*middleware.AccessTokenClaims

func (tt tokenTable) VerifyAccessToken(
	_ context.Context,
	token string,
) (*middleware.AccessTokenClaims, error) {
	if claims, ok := tt[token]; ok {
		return claims, nil
	}
	return nil, core.ErrTokenInvalid
}

func newTestRouter(t *testing.T, requestsPerWindow int) http.Handler {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	webhook := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	verifier := tokenTable{
		"tok-a": {UserID: "user-a", Email: "a@example.com"},
		"tok-b": {UserID: "user-b", Email: "b@example.com"},
	}
	limiter := middleware.NewRateLimiter(rdb, middleware.RateLimitConfig{
		Limit:   middleware.LimitFromConfig(config.RateLimitConfig{Requests: requestsPerWindow}),
		Scope:   "test:ratelimit:api",
		KeyFunc: middleware.KeyByUser,
	})

	router := chi.NewRouter()
	mountRoutes(router, routeDeps{
		Health:   health.NewHandler(),
		Billing:  billing.NewHandler(nil, webhook),
		Ops:      ops.NewHandler(nil),
		Verifier: verifier,
		Limiter:  limiter,
		Admin:    config.AdminConfig{Role: "admin"},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
	})
	return router
}

func send(h http.Handler, method, path, token string) int {
	r := httptest.NewRequest(method, path, strings.NewReader("{}"))
	r.RemoteAddr = "203.0.113.5:443"
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec.Code
}

func TestWebhookRouteIsNotRateLimited(t *testing.T) {
	router := newTestRouter(t, 2)

	for i := range 40 {
		require.Equal(t, http.StatusOK,
			send(router, http.MethodPost, "/v1/billing/webhook", ""),
			"delivery %d", i)
	}
}

func TestAPIRoutesAreLimitedPerUser(t *testing.T) {
	router := newTestRouter(t, 2)

	assert.Equal(t, http.StatusForbidden, send(router, http.MethodGet, "/v1/ops/health", "tok-a"))
	assert.Equal(t, http.StatusForbidden, send(router, http.MethodGet, "/v1/ops/health", "tok-a"))
	assert.Equal(t, http.StatusTooManyRequests, send(router, http.MethodGet, "/v1/ops/health", "tok-a"))

	assert.Equal(t, http.StatusForbidden, send(router, http.MethodGet, "/v1/ops/health", "tok-b"),
		"a second user from the same address has its own budget")
}

func TestUnauthenticatedRequestsDoNotSpendBudget(t *testing.T) {
	router := newTestRouter(t, 1)

	for range 5 {
		assert.Equal(t, http.StatusUnauthorized, send(router, http.MethodPost, "/v1/billing/checkout", ""))
		assert.Equal(t, http.StatusUnauthorized, send(router, http.MethodPost, "/v1/billing/checkout", "bogus"))
	}
	assert.Equal(t, http.StatusForbidden, send(router, http.MethodPost, "/v1/ops/recovery", "tok-a"))
}

func TestHealthAndMetricsMounted(t *testing.T) {
	router := newTestRouter(t, 1)

	assert.Equal(t, http.StatusOK, send(router, http.MethodGet, "/healthz", ""))
	assert.Equal(t, http.StatusOK, send(router, http.MethodGet, "/readyz", ""))
	assert.Equal(t, http.StatusOK, send(router, http.MethodGet, "/metrics", ""))
}
