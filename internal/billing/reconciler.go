// AngelaMos | 2026
// reconciler.go

package billing

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
	"github.com/carterperez-dev/templates/storefront-billing/internal/tenant"
)

const (
	SourceCheckout = "checkout"
	SourceWebhook  = "webhook"
	SourceRecovery = "recovery"
)

// Store is the part of the tenant store billing writes through.
type Store interface {
	Auditor
	EnsureSubscription(ctx context.Context, hotelID string) error
	GetSubscription(ctx context.Context, hotelID string) (*tenant.Subscription, error)
	ApplySubscription(
		ctx context.Context,
		hotelID string,
		u tenant.SubscriptionUpdate,
	) (*tenant.Subscription, error)
	SetCustomerID(ctx context.Context, hotelID, customerID string) error
	FindHotelBySubscriptionID(ctx context.Context, subscriptionID string) (string, error)
	FindHotelByCustomerID(ctx context.Context, customerID string) (string, error)
}

// Reconciliation is one convergence request. Subscription is the freshest
// processor snapshot available; when it is nil, Status and CustomerID
// stand in for it.
type Reconciliation struct {
	HotelID      string
	Subscription *RemoteSubscription
	Status       string
	CustomerID   string
	Source       string
	Action       string
	Message      string
	Metadata     map[string]any
}

// Reconciler overwrites a tenant's billing state from a processor
// snapshot. Every call is a full overwrite, so replays and reordered
// calls converge on whatever the processor reported last.
type Reconciler struct {
	store  Store
	period *PeriodResolver
	logger *slog.Logger
	now    func() time.Time
}

func NewReconciler(store Store, period *PeriodResolver, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:  store,
		period: period,
		logger: logger,
		now:    time.Now,
	}
}

func (r *Reconciler) Reconcile(
	ctx context.Context,
	in Reconciliation,
) (*tenant.Subscription, error) {
	ctx, span := core.StartSpan(ctx, "billing.reconcile",
		attribute.String("hotel_id", in.HotelID),
		attribute.String("source", in.Source),
	)
	defer span.End()

	sub, err := r.reconcile(ctx, in)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		core.SetSpanError(ctx, err)
	}
	reconciliationsTotal.WithLabelValues(in.Source, outcome).Inc()

	return sub, err
}

func (r *Reconciler) reconcile(
	ctx context.Context,
	in Reconciliation,
) (*tenant.Subscription, error) {
	if in.HotelID == "" {
		return nil, fmt.Errorf("reconcile: %w", ErrTenantUnresolved)
	}

	if err := r.store.EnsureSubscription(ctx, in.HotelID); err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	processorStatus := in.Status
	update := tenant.SubscriptionUpdate{StripeCustomerID: in.CustomerID}
	if in.Subscription != nil {
		processorStatus = in.Subscription.Status
		update.StripeSubscriptionID = in.Subscription.ID
		update.StripePriceID = in.Subscription.PriceID()
		if in.Subscription.CustomerID != "" {
			update.StripeCustomerID = in.Subscription.CustomerID
		}
		update.CurrentPeriodEnd = r.period.Resolve(ctx, in.Subscription)
	}

	update.Status, update.Plan = MapStatus(processorStatus)
	update.MaxPublishedPages = QuotaForPlan(update.Plan)
	update.UpdatedAt = r.now().UTC()

	sub, err := r.store.ApplySubscription(ctx, in.HotelID, update)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	meta := make(map[string]any, len(in.Metadata)+6)
	maps.Copy(meta, in.Metadata)
	meta["source"] = in.Source
	meta["processor_status"] = processorStatus
	meta["status"] = sub.Status
	meta["plan"] = sub.Plan
	meta["stripe_subscription_id"] = sub.SubscriptionID()
	meta["stripe_customer_id"] = sub.CustomerID()
	if sub.CurrentPeriodEnd != nil {
		meta["current_period_end"] = sub.CurrentPeriodEnd.UTC().Format(time.RFC3339)
	}

	if err := RecordAudit(ctx, r.store, in.HotelID, in.Action, in.Message, meta); err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	r.logger.Info("subscription reconciled",
		"hotel_id", in.HotelID,
		"source", in.Source,
		"status", sub.Status,
		"plan", sub.Plan,
	)

	return sub, nil
}
