// AngelaMos | 2026
// errors.go

package billing

import (
	"errors"
	"net/http"

	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
)

// AppErrorFor maps billing failures onto the API error envelope.
// Unrecognised errors pass through and render as 500.
func AppErrorFor(err error) error {
	if err == nil || core.IsAppError(err) {
		return err
	}

	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrSubscriptionUnidentified):
		return core.NewAppError(
			http.StatusConflict,
			"SUBSCRIPTION_UNIDENTIFIED",
			"no subscription could be identified for this tenant; run checkout again",
			err,
		)
	case errors.Is(err, ErrNoCustomer):
		return core.NewAppError(
			http.StatusConflict,
			"NO_BILLING_CUSTOMER",
			"tenant has no billing customer yet; start a checkout first",
			err,
		)
	case errors.Is(err, ErrNotConfigured):
		return core.NewAppError(
			http.StatusServiceUnavailable,
			"BILLING_NOT_CONFIGURED",
			"billing is not configured",
			err,
		)
	case errors.As(err, &upstream):
		return core.UpstreamError(upstream.Message, err)
	case errors.Is(err, ErrRemoteNotFound):
		return core.UpstreamError(err.Error(), err)
	case errors.Is(err, core.ErrUnauthorized):
		return core.UnauthorizedError("authentication required")
	case errors.Is(err, ErrTenantUnresolved), errors.Is(err, core.ErrNotFound):
		return core.NotFoundError("tenant")
	default:
		return err
	}
}
