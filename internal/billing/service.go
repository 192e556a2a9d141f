// AngelaMos | 2026
// service.go

package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/carterperez-dev/templates/storefront-billing/internal/alert"
	"github.com/carterperez-dev/templates/storefront-billing/internal/tenant"
)

type ScopeResolver interface {
	EnsureScope(ctx context.Context, userID, email string) (*tenant.Membership, error)
}

// Identity is the verified caller.
type Identity struct {
	UserID string
	Email  string
}

type ServiceConfig struct {
	AppBaseURL         string
	ProPriceID         string
	DefaultSuccessPath string
	DefaultCancelPath  string
	DefaultReturnPath  string
}

type Service struct {
	store     Store
	scopes    ScopeResolver
	processor Processor
	alerter   Alerter
	cfg       ServiceConfig
	logger    *slog.Logger
}

func NewService(
	store Store,
	scopes ScopeResolver,
	processor Processor,
	alerter Alerter,
	cfg ServiceConfig,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		scopes:    scopes,
		processor: processor,
		alerter:   alerter,
		cfg:       cfg,
		logger:    logger,
	}
}

type CheckoutResult struct {
	URL     string
	HotelID string
}

// CreateCheckout builds a subscription checkout session for the caller's
// tenant, creating the tenant and the processor customer when missing.
func (s *Service) CreateCheckout(
	ctx context.Context,
	id Identity,
	successPath, cancelPath string,
) (*CheckoutResult, error) {
	if s.cfg.ProPriceID == "" {
		return nil, fmt.Errorf("create checkout: price: %w", ErrNotConfigured)
	}

	m, err := s.scopes.EnsureScope(ctx, id.UserID, id.Email)
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	customerID, err := s.ensureCustomer(ctx, m.HotelID, id.Email)
	if err != nil {
		s.fail(ctx, m.HotelID, "checkout", err)
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	url, err := s.processor.CreateCheckoutSession(ctx, CheckoutRequest{
		CustomerID: customerID,
		PriceID:    s.cfg.ProPriceID,
		SuccessURL: s.absoluteURL(SafeRedirectPath(successPath, s.cfg.DefaultSuccessPath)),
		CancelURL:  s.absoluteURL(SafeRedirectPath(cancelPath, s.cfg.DefaultCancelPath)),
		HotelID:    m.HotelID,
		UserID:     id.UserID,
	})
	if err != nil {
		s.fail(ctx, m.HotelID, "checkout", err)
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	s.audit(ctx, m.HotelID, ActionCheckoutSessionCreated, "Checkout session created", map[string]any{
		"user_id":            id.UserID,
		"stripe_customer_id": customerID,
	})

	return &CheckoutResult{URL: url, HotelID: m.HotelID}, nil
}

func (s *Service) ensureCustomer(ctx context.Context, hotelID, email string) (string, error) {
	sub, err := s.store.GetSubscription(ctx, hotelID)
	if err != nil {
		return "", err
	}
	if id := sub.CustomerID(); id != "" {
		return id, nil
	}

	customerID, err := s.processor.CreateCustomer(ctx, email, hotelID)
	if err != nil {
		return "", err
	}
	if err := s.store.SetCustomerID(ctx, hotelID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

func (s *Service) CreatePortal(
	ctx context.Context,
	id Identity,
	returnPath string,
) (string, error) {
	m, err := s.scopes.EnsureScope(ctx, id.UserID, id.Email)
	if err != nil {
		return "", fmt.Errorf("create portal: %w", err)
	}

	sub, err := s.store.GetSubscription(ctx, m.HotelID)
	if err != nil {
		s.fail(ctx, m.HotelID, "portal", err)
		return "", fmt.Errorf("create portal: %w", err)
	}
	if sub.CustomerID() == "" {
		return "", fmt.Errorf("create portal: %w", ErrNoCustomer)
	}

	url, err := s.processor.CreatePortalSession(
		ctx,
		sub.CustomerID(),
		s.absoluteURL(SafeRedirectPath(returnPath, s.cfg.DefaultReturnPath)),
	)
	if err != nil {
		s.fail(ctx, m.HotelID, "portal", err)
		return "", fmt.Errorf("create portal: %w", err)
	}

	s.audit(ctx, m.HotelID, ActionPortalSessionCreated, "Billing portal opened", map[string]any{
		"user_id": id.UserID,
	})

	return url, nil
}

func (s *Service) Subscription(ctx context.Context, id Identity) (*tenant.Subscription, error) {
	m, err := s.scopes.EnsureScope(ctx, id.UserID, id.Email)
	if err != nil {
		return nil, fmt.Errorf("subscription: %w", err)
	}

	sub, err := s.store.GetSubscription(ctx, m.HotelID)
	if err != nil {
		return nil, fmt.Errorf("subscription: %w", err)
	}
	return sub, nil
}

// RecordUpgradeClick feeds the top of the conversion funnel.
func (s *Service) RecordUpgradeClick(ctx context.Context, id Identity, placement string) error {
	m, err := s.scopes.EnsureScope(ctx, id.UserID, id.Email)
	if err != nil {
		return fmt.Errorf("record upgrade click: %w", err)
	}

	meta := map[string]any{"user_id": id.UserID}
	if placement != "" {
		meta["placement"] = placement
	}
	if err := RecordAudit(ctx, s.store, m.HotelID, ActionUpgradeClicked, "Upgrade clicked", meta); err != nil {
		return fmt.Errorf("record upgrade click: %w", err)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, hotelID, action, message string, meta map[string]any) {
	if err := RecordAudit(ctx, s.store, hotelID, action, message, meta); err != nil {
		s.logger.Error("audit write failed",
			"hotel_id", hotelID,
			"action", action,
			"error", err,
		)
	}
}

func (s *Service) fail(ctx context.Context, hotelID, flow string, err error) {
	s.logger.Error("billing session failed",
		"hotel_id", hotelID,
		"flow", flow,
		"error", err,
	)
	s.audit(ctx, hotelID, ActionCheckoutFailed, "Billing session failed", map[string]any{
		"flow":  flow,
		"error": err.Error(),
	})
	if s.alerter != nil {
		s.alerter.Fire(ctx, alert.Alert{
			Title:   "Billing " + flow + " failed",
			Message: err.Error(),
			Fields:  map[string]string{"hotel_id": hotelID},
		})
	}
}

func (s *Service) absoluteURL(path string) string {
	return strings.TrimRight(s.cfg.AppBaseURL, "/") + path
}

// SafeRedirectPath accepts only same-origin absolute paths. Anything else,
// including protocol-relative "//host" forms, yields fallback.
func SafeRedirectPath(path, fallback string) string {
	if !strings.HasPrefix(path, "/") ||
		strings.HasPrefix(path, "//") ||
		strings.HasPrefix(path, "/\\") {
		return fallback
	}
	return path
}
