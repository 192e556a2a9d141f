// AngelaMos | 2026
// stripe.go

package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/balance"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/subscription"

	"github.com/carterperez-dev/templates/storefront-billing/internal/config"
)

// StripeProcessor implements Processor with the stripe-go package API.
// The secret key is process-global in stripe-go.
type StripeProcessor struct {
	configured bool
}

func NewStripeProcessor(cfg config.StripeConfig) *StripeProcessor {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	return &StripeProcessor{configured: cfg.SecretKey != ""}
}

func (p *StripeProcessor) GetSubscription(
	ctx context.Context,
	id string,
) (*RemoteSubscription, error) {
	if !p.configured {
		return nil, ErrNotConfigured
	}

	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", id, mapStripeError(err))
	}

	return subscriptionFromStripe(sub), nil
}

func (p *StripeProcessor) ListCustomerSubscriptions(
	ctx context.Context,
	customerID string,
) ([]*RemoteSubscription, error) {
	if !p.configured {
		return nil, ErrNotConfigured
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(20)

	var subs []*RemoteSubscription
	iter := subscription.List(params)
	for iter.Next() {
		subs = append(subs, subscriptionFromStripe(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", mapStripeError(err))
	}

	return subs, nil
}

func (p *StripeProcessor) PreviewInvoice(
	ctx context.Context,
	customerID, subscriptionID string,
) (*RemoteInvoice, error) {
	if !p.configured {
		return nil, ErrNotConfigured
	}

	params := &stripe.InvoiceCreatePreviewParams{
		Customer: stripe.String(customerID),
	}
	if subscriptionID != "" {
		params.Subscription = stripe.String(subscriptionID)
	}
	params.Context = ctx

	inv, err := invoice.CreatePreview(params)
	if err != nil {
		return nil, fmt.Errorf("preview invoice: %w", mapStripeError(err))
	}

	return invoiceFromStripe(inv), nil
}

func (p *StripeProcessor) ListInvoices(
	ctx context.Context,
	customerID, subscriptionID string,
	limit int,
) ([]*RemoteInvoice, error) {
	if !p.configured {
		return nil, ErrNotConfigured
	}

	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
	}
	if subscriptionID != "" {
		params.Subscription = stripe.String(subscriptionID)
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	params.Single = true

	var invoices []*RemoteInvoice
	iter := invoice.List(params)
	for iter.Next() && len(invoices) < limit {
		invoices = append(invoices, invoiceFromStripe(iter.Invoice()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list invoices: %w", mapStripeError(err))
	}

	return invoices, nil
}

func (p *StripeProcessor) CreateCustomer(
	ctx context.Context,
	email, hotelID string,
) (string, error) {
	if !p.configured {
		return "", ErrNotConfigured
	}

	params := &stripe.CustomerParams{
		Metadata: map[string]string{MetadataHotelID: hotelID},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx

	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", mapStripeError(err))
	}

	return c.ID, nil
}

func (p *StripeProcessor) CreateCheckoutSession(
	ctx context.Context,
	req CheckoutRequest,
) (string, error) {
	if !p.configured {
		return "", ErrNotConfigured
	}

	metadata := map[string]string{
		MetadataHotelID: req.HotelID,
		MetadataUserID:  req.UserID,
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(req.CustomerID),
		ClientReferenceID: stripe.String(req.HotelID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: metadata,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx

	s, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", mapStripeError(err))
	}

	return s.URL, nil
}

func (p *StripeProcessor) CreatePortalSession(
	ctx context.Context,
	customerID, returnURL string,
) (string, error) {
	if !p.configured {
		return "", ErrNotConfigured
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", mapStripeError(err))
	}

	return s.URL, nil
}

// Ping performs the cheapest authenticated call available.
func (p *StripeProcessor) Ping(ctx context.Context) error {
	if !p.configured {
		return ErrNotConfigured
	}

	params := &stripe.BalanceParams{}
	params.Context = ctx

	if _, err := balance.Get(params); err != nil {
		return fmt.Errorf("stripe ping: %w", mapStripeError(err))
	}
	return nil
}

func mapStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.Code == stripe.ErrorCodeResourceMissing ||
			se.HTTPStatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", se.Msg, ErrRemoteNotFound)
		}
		return &UpstreamError{Message: se.Msg, Err: err}
	}
	return &UpstreamError{Message: err.Error(), Err: err}
}

// UpstreamError carries the processor's own message for the caller.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	return "stripe: " + e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func subscriptionFromStripe(s *stripe.Subscription) *RemoteSubscription {
	if s == nil {
		return nil
	}

	if s.LastResponse != nil && len(s.LastResponse.RawJSON) > 0 {
		if parsed, err := ParseSubscription(s.LastResponse.RawJSON); err == nil {
			return parsed
		}
	}

	sub := &RemoteSubscription{
		ID:       s.ID,
		Status:   string(s.Status),
		Metadata: s.Metadata,
	}
	if s.Customer != nil {
		sub.CustomerID = s.Customer.ID
	}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item == nil {
				continue
			}
			ri := RemoteItem{CurrentPeriodEnd: item.CurrentPeriodEnd}
			if item.Price != nil {
				ri.PriceID = item.Price.ID
			}
			sub.Items = append(sub.Items, ri)
		}
	}
	return sub
}

func invoiceFromStripe(inv *stripe.Invoice) *RemoteInvoice {
	if inv == nil {
		return nil
	}

	if inv.LastResponse != nil && len(inv.LastResponse.RawJSON) > 0 {
		if parsed, err := ParseInvoice(inv.LastResponse.RawJSON); err == nil {
			return parsed
		}
	}

	out := &RemoteInvoice{
		ID:        inv.ID,
		PeriodEnd: inv.PeriodEnd,
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line != nil && line.Period != nil && line.Period.End > 0 {
				out.LinePeriodEnds = append(out.LinePeriodEnds, line.Period.End)
			}
		}
	}
	return out
}
