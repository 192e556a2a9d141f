// AngelaMos | 2026
// webhook.go

package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/carterperez-dev/templates/storefront-billing/internal/alert"
	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
)

const webhookBodyLimit = 1024 * 1024

// Reasons recorded when an event is acknowledged without reconciling.
const (
	reasonTenantUnresolved    = "tenant_unresolved"
	reasonSubscriptionMissing = "subscription_missing"
)

type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Alerter interface {
	Fire(ctx context.Context, a alert.Alert)
}

type WebhookConfig struct {
	Secret     string
	Reconciler *Reconciler
	Processor  Processor
	Store      Store
	Deduper    Deduper
	Alerter    Alerter
	Logger     *slog.Logger
}

// WebhookHandler verifies Stripe deliveries and routes them into the
// reconciler. Subscription state is always refetched from Stripe rather
// than taken from the event body.
type WebhookHandler struct {
	secret     string
	reconciler *Reconciler
	processor  Processor
	store      Store
	deduper    Deduper
	alerter    Alerter
	logger     *slog.Logger
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebhookHandler{
		secret:     cfg.Secret,
		reconciler: cfg.Reconciler,
		processor:  cfg.Processor,
		store:      cfg.Store,
		deduper:    cfg.Deduper,
		alerter:    cfg.Alerter,
		logger:     cfg.Logger,
	}
}

type webhookReceived struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		webhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		webhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(h.secret) == "" {
		status = http.StatusServiceUnavailable
		core.JSONError(w, AppErrorFor(ErrNotConfigured))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		core.BadRequest(w, "failed to read request body")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		status = http.StatusBadRequest
		core.BadRequest(w, "missing Stripe signature")
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		sigHeader,
		h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		status = http.StatusBadRequest
		core.BadRequest(w, "invalid Stripe signature")
		return
	}
	eventType = string(event.Type)

	ctx := r.Context()
	if h.alreadyProcessed(ctx, event.ID) {
		core.OK(w, webhookReceived{Received: true, Duplicate: true})
		return
	}

	if err := h.handleEvent(ctx, &event); err != nil {
		status = http.StatusInternalServerError
		h.reportFailure(ctx, &event, err)
		core.JSONError(w, core.NewAppError(
			http.StatusInternalServerError,
			"WEBHOOK_PROCESSING_FAILED",
			"processing failed",
			err,
		))
		return
	}

	if h.deduper != nil {
		if err := h.deduper.Mark(ctx, event.ID); err != nil {
			h.logger.Warn("webhook dedupe mark failed",
				"event_id", event.ID,
				"error", err,
			)
		}
	}

	core.OK(w, webhookReceived{Received: true})
}

func (h *WebhookHandler) alreadyProcessed(ctx context.Context, eventID string) bool {
	if h.deduper == nil || eventID == "" {
		return false
	}
	seen, err := h.deduper.Seen(ctx, eventID)
	if err != nil {
		h.logger.Warn("webhook dedupe unavailable, processing anyway",
			"event_id", eventID,
			"error", err,
		)
		return false
	}
	if seen {
		h.logger.Info("webhook redelivery skipped", "event_id", eventID)
	}
	return seen
}

func (h *WebhookHandler) handleEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return h.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.updated":
		return h.handleSubscriptionChanged(ctx, event, ActionSubscriptionUpdated)
	case "customer.subscription.deleted":
		return h.handleSubscriptionChanged(ctx, event, ActionSubscriptionDeleted)
	case "invoice.paid", "invoice.payment_failed":
		return h.handleInvoice(ctx, event)
	default:
		h.logger.Debug("stripe webhook ignored",
			"type", string(event.Type),
			"event_id", event.ID,
		)
		return nil
	}
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	session, err := ParseCheckoutSession(event.Data.Raw)
	if err != nil {
		return err
	}
	if session.Mode != string(stripe.CheckoutSessionModeSubscription) {
		return nil
	}

	hotelID := h.metadataHotelID(event, session.HotelID())
	if hotelID == "" {
		hotelID, err = h.lookupHotel(ctx, "", session.CustomerID)
		if errors.Is(err, ErrTenantUnresolved) {
			return h.unresolved(ctx, event, reasonTenantUnresolved, session.SubscriptionID, session.CustomerID)
		}
		if err != nil {
			return err
		}
	}

	meta := eventMetadata(event)
	meta["checkout_session_id"] = session.ID

	in := Reconciliation{
		HotelID:    hotelID,
		CustomerID: session.CustomerID,
		Source:     SourceCheckout,
		Action:     ActionCheckoutCompleted,
		Message:    "Checkout completed",
		Metadata:   meta,
	}

	if session.SubscriptionID != "" {
		live, err := h.processor.GetSubscription(ctx, session.SubscriptionID)
		if errors.Is(err, ErrRemoteNotFound) {
			return h.unresolved(ctx, event, reasonSubscriptionMissing, session.SubscriptionID, session.CustomerID)
		}
		if err != nil {
			return fmt.Errorf("checkout completed: %w", err)
		}
		in.Subscription = live
	} else {
		in.Status = string(stripe.SubscriptionStatusActive)
	}

	return h.reconcile(ctx, event, in)
}

func (h *WebhookHandler) handleSubscriptionChanged(
	ctx context.Context,
	event *stripe.Event,
	action string,
) error {
	payload, err := ParseSubscription(event.Data.Raw)
	if err != nil {
		return err
	}

	sub, err := h.freshSubscription(ctx, payload)
	if err != nil {
		return err
	}

	hotelID, err := h.resolveHotel(ctx, event, sub)
	if errors.Is(err, ErrTenantUnresolved) {
		return h.unresolved(ctx, event, reasonTenantUnresolved, sub.ID, sub.CustomerID)
	}
	if err != nil {
		return err
	}

	message := "Subscription updated"
	if action == ActionSubscriptionDeleted {
		message = "Subscription deleted"
	}

	return h.reconcile(ctx, event, Reconciliation{
		HotelID:      hotelID,
		Subscription: sub,
		Source:       SourceWebhook,
		Action:       action,
		Message:      message,
		Metadata:     eventMetadata(event),
	})
}

func (h *WebhookHandler) handleInvoice(ctx context.Context, event *stripe.Event) error {
	inv, err := ParseInvoice(event.Data.Raw)
	if err != nil {
		return err
	}
	if inv.SubscriptionID == "" {
		return nil
	}

	sub, err := h.processor.GetSubscription(ctx, inv.SubscriptionID)
	if errors.Is(err, ErrRemoteNotFound) {
		h.logger.Warn("invoice references unknown subscription",
			"event_id", event.ID,
			"subscription_id", inv.SubscriptionID,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("invoice event: %w", err)
	}

	hotelID, err := h.resolveHotel(ctx, event, sub)
	if errors.Is(err, ErrTenantUnresolved) {
		return h.unresolved(ctx, event, reasonTenantUnresolved, sub.ID, sub.CustomerID)
	}
	if err != nil {
		return err
	}

	meta := eventMetadata(event)
	meta["invoice_id"] = inv.ID

	return h.reconcile(ctx, event, Reconciliation{
		HotelID:      hotelID,
		Subscription: sub,
		Source:       SourceWebhook,
		Action:       ActionInvoiceEvent,
		Message:      "Invoice " + strings.TrimPrefix(string(event.Type), "invoice."),
		Metadata:     meta,
	})
}

// reconcile applies in and acknowledges events whose tenant row does not
// exist in the store.
func (h *WebhookHandler) reconcile(ctx context.Context, event *stripe.Event, in Reconciliation) error {
	_, err := h.reconciler.Reconcile(ctx, in)
	if errors.Is(err, core.ErrNotFound) {
		subID, customerID := "", in.CustomerID
		if in.Subscription != nil {
			subID = in.Subscription.ID
			if customerID == "" {
				customerID = in.Subscription.CustomerID
			}
		}
		return h.unresolved(ctx, event, reasonTenantUnresolved, subID, customerID)
	}
	return err
}

// freshSubscription refetches the subscription from Stripe. The event
// body is used only when Stripe no longer has the object.
func (h *WebhookHandler) freshSubscription(
	ctx context.Context,
	payload *RemoteSubscription,
) (*RemoteSubscription, error) {
	if payload.ID == "" {
		return payload, nil
	}

	live, err := h.processor.GetSubscription(ctx, payload.ID)
	switch {
	case err == nil:
		if len(live.Metadata) == 0 {
			live.Metadata = payload.Metadata
		}
		return live, nil
	case errors.Is(err, ErrRemoteNotFound):
		return payload, nil
	default:
		return nil, fmt.Errorf("refetch subscription: %w", err)
	}
}

func (h *WebhookHandler) resolveHotel(
	ctx context.Context,
	event *stripe.Event,
	sub *RemoteSubscription,
) (string, error) {
	if id := h.metadataHotelID(event, sub.HotelID()); id != "" {
		return id, nil
	}
	return h.lookupHotel(ctx, sub.ID, sub.CustomerID)
}

// metadataHotelID returns id when it is a well-formed tenant id. Anything
// else is logged and ignored so the stored references are tried instead.
func (h *WebhookHandler) metadataHotelID(event *stripe.Event, id string) string {
	if id == "" {
		return ""
	}
	if err := uuid.Validate(id); err != nil {
		h.logger.Warn("stripe metadata carries malformed hotel id",
			"event_id", event.ID,
			"hotel_id", id,
		)
		return ""
	}
	return id
}

func (h *WebhookHandler) lookupHotel(
	ctx context.Context,
	subscriptionID, customerID string,
) (string, error) {
	if subscriptionID != "" {
		id, err := h.store.FindHotelBySubscriptionID(ctx, subscriptionID)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return "", err
		}
	}

	if customerID != "" {
		id, err := h.store.FindHotelByCustomerID(ctx, customerID)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return "", err
		}
	}

	return "", ErrTenantUnresolved
}

// unresolved acknowledges an event no tenant owns so Stripe stops
// redelivering it.
func (h *WebhookHandler) unresolved(
	ctx context.Context,
	event *stripe.Event,
	reason, subscriptionID, customerID string,
) error {
	h.logger.Warn("stripe webhook acknowledged without reconciling",
		"event_id", event.ID,
		"type", string(event.Type),
		"reason", reason,
		"subscription_id", subscriptionID,
		"customer_id", customerID,
	)

	meta := eventMetadata(event)
	meta["reason"] = reason
	meta["stripe_subscription_id"] = subscriptionID
	meta["stripe_customer_id"] = customerID

	if err := RecordAudit(ctx, h.store, "", ActionWebhookFailed,
		"Webhook event not applied", meta); err != nil {
		h.logger.Error("audit write failed", "event_id", event.ID, "error", err)
	}
	return nil
}

func (h *WebhookHandler) reportFailure(ctx context.Context, event *stripe.Event, err error) {
	h.logger.Error("stripe webhook processing failed",
		"event_id", event.ID,
		"type", string(event.Type),
		"error", err,
	)

	meta := eventMetadata(event)
	meta["error"] = err.Error()
	if auditErr := RecordAudit(ctx, h.store, "", ActionWebhookFailed,
		"Webhook processing failed", meta); auditErr != nil {
		h.logger.Error("audit write failed", "event_id", event.ID, "error", auditErr)
	}

	if h.alerter != nil {
		h.alerter.Fire(ctx, alert.Alert{
			Title:   "Stripe webhook processing failed",
			Message: err.Error(),
			Fields: map[string]string{
				"event_id":   event.ID,
				"event_type": string(event.Type),
			},
		})
	}
}

func eventMetadata(event *stripe.Event) map[string]any {
	meta := map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	}
	if event.Created > 0 {
		meta["event_created"] = time.Unix(event.Created, 0).UTC().Format(time.RFC3339)
	}
	return meta
}
