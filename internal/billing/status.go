// AngelaMos | 2026
// status.go

package billing

import (
	"github.com/carterperez-dev/templates/storefront-billing/internal/tenant"
)

const (
	QuotaFree = 3
	QuotaPro  = 1000
)

// MapStatus translates a Stripe subscription status into the internal
// (status, plan) pair. Unknown statuses fail closed to canceled/free.
func MapStatus(stripeStatus string) (status, plan string) {
	switch stripeStatus {
	case "trialing":
		return tenant.StatusTrialing, tenant.PlanPro
	case "active":
		return tenant.StatusActive, tenant.PlanPro
	case "past_due", "unpaid":
		return tenant.StatusPastDue, tenant.PlanPro
	default:
		return tenant.StatusCanceled, tenant.PlanFree
	}
}

func QuotaForPlan(plan string) int {
	if plan == tenant.PlanPro {
		return QuotaPro
	}
	return QuotaFree
}
