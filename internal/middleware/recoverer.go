// AngelaMos | 2026
// recoverer.go

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/carterperez-dev/templates/storefront-billing/internal/alert"
	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
)

type Alerter interface {
	Fire(ctx context.Context, a alert.Alert)
}

// Recoverer turns a panic into a 500 and raises an ops alert.
func Recoverer(logger *slog.Logger, alerter Alerter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("panic recovered",
					"request_id", GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)

				if alerter != nil {
					alerter.Fire(r.Context(), alert.Alert{
						Title:   "Unhandled error",
						Message: fmt.Sprint(rec),
						Fields: map[string]string{
							"method":     r.Method,
							"path":       r.URL.Path,
							"request_id": GetRequestID(r.Context()),
						},
					})
				}

				core.JSONError(w, fmt.Errorf("panic: %v", rec))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
