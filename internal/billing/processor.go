// AngelaMos | 2026
// processor.go

package billing

import (
	"context"
	"errors"
)

const (
	MetadataHotelID = "hotel_id"
	MetadataUserID  = "user_id"
)

var (
	ErrRemoteNotFound   = errors.New("not found at payments processor")
	ErrNotConfigured    = errors.New("payments processor not configured")
	ErrNoCustomer       = errors.New("no billing customer for tenant")
	ErrTenantUnresolved = errors.New("tenant could not be resolved")
	// ErrSubscriptionUnidentified means recovery found nothing to sync and
	// checkout has to be run again.
	ErrSubscriptionUnidentified = errors.New("no subscription could be identified")
)

// Processor is the slice of the payments processor API the billing
// layer depends on.
type Processor interface {
	GetSubscription(ctx context.Context, id string) (*RemoteSubscription, error)
	ListCustomerSubscriptions(
		ctx context.Context,
		customerID string,
	) ([]*RemoteSubscription, error)
	PreviewInvoice(
		ctx context.Context,
		customerID, subscriptionID string,
	) (*RemoteInvoice, error)
	ListInvoices(
		ctx context.Context,
		customerID, subscriptionID string,
		limit int,
	) ([]*RemoteInvoice, error)
	CreateCustomer(ctx context.Context, email, hotelID string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	Ping(ctx context.Context) error
}

type CheckoutRequest struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	HotelID    string
	UserID     string
}
