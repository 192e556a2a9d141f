// AngelaMos | 2026
// dto.go

package billing

import (
	"time"

	"github.com/carterperez-dev/templates/storefront-billing/internal/tenant"
)

type CreateCheckoutRequest struct {
	SuccessPath string `json:"success_path,omitempty" validate:"omitempty,max=512"`
	CancelPath  string `json:"cancel_path,omitempty"  validate:"omitempty,max=512"`
}

type CreatePortalRequest struct {
	ReturnPath string `json:"return_path,omitempty" validate:"omitempty,max=512"`
}

type TrackEventRequest struct {
	Event     string `json:"event"               validate:"required,oneof=upgrade_clicked"`
	Placement string `json:"placement,omitempty" validate:"omitempty,max=64"`
}

type CheckoutResponse struct {
	URL     string `json:"url"`
	HotelID string `json:"hotel_id"`
}

type PortalResponse struct {
	URL string `json:"url"`
}

type SubscriptionResponse struct {
	HotelID              string     `json:"hotel_id"`
	Plan                 string     `json:"plan"`
	Status               string     `json:"status"`
	MaxPublishedPages    int        `json:"max_published_pages"`
	StripeCustomerID     *string    `json:"stripe_customer_id"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id"`
	StripePriceID        *string    `json:"stripe_price_id"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func ToSubscriptionResponse(s *tenant.Subscription) *SubscriptionResponse {
	if s == nil {
		return nil
	}
	return &SubscriptionResponse{
		HotelID:              s.HotelID,
		Plan:                 s.Plan,
		Status:               s.Status,
		MaxPublishedPages:    s.MaxPublishedPages,
		StripeCustomerID:     s.StripeCustomerID,
		StripeSubscriptionID: s.StripeSubscriptionID,
		StripePriceID:        s.StripePriceID,
		CurrentPeriodEnd:     s.CurrentPeriodEnd,
		UpdatedAt:            s.UpdatedAt,
	}
}
