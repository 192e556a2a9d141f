// AngelaMos | 2026
// dto.go

package ops

import "github.com/carterperez-dev/templates/storefront-billing/internal/billing"

type RecoveryRequest struct {
	Action string `json:"action" validate:"required,oneof=ensure_scope sync_subscription"`
}

type RecoveryResponse struct {
	Action       string                        `json:"action"`
	HotelID      string                        `json:"hotel_id"`
	Subscription *billing.SubscriptionResponse `json:"subscription"`
}

func ToRecoveryResponse(r *RecoveryResult) RecoveryResponse {
	return RecoveryResponse{
		Action:       r.Action,
		HotelID:      r.HotelID,
		Subscription: billing.ToSubscriptionResponse(r.Subscription),
	}
}
