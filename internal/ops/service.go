// AngelaMos | 2026
// service.go

package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carterperez-dev/templates/storefront-billing/internal/alert"
	"github.com/carterperez-dev/templates/storefront-billing/internal/billing"
	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
	"github.com/carterperez-dev/templates/storefront-billing/internal/tenant"
)

const (
	ActionEnsureScope      = "ensure_scope"
	ActionSyncSubscription = "sync_subscription"
)

var ErrUnknownAction = errors.New("unknown recovery action")

// Store is the tenant store as seen by the ops console.
type Store interface {
	billing.Store
	GetMembershipByUser(ctx context.Context, userID string) (*tenant.Membership, error)
	CountAuditActions(
		ctx context.Context,
		actions []string,
		since time.Time,
	) (map[string]int, error)
	RecentAudit(
		ctx context.Context,
		hotelID, actionPrefix string,
		limit int,
	) ([]tenant.AuditEntry, error)
	CountPages(ctx context.Context, hotelID string) (tenant.PageCounts, error)
}

type Config struct {
	Store      Store
	Scopes     billing.ScopeResolver
	Processor  billing.Processor
	Reconciler *billing.Reconciler
	Alerter    billing.Alerter
	Presence   map[string]bool
	Infra      InfraSources
	Logger     *slog.Logger
}

type Service struct {
	store      Store
	scopes     billing.ScopeResolver
	processor  billing.Processor
	reconciler *billing.Reconciler
	alerter    billing.Alerter
	presence   map[string]bool
	infra      InfraSources
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:      cfg.Store,
		scopes:     cfg.Scopes,
		processor:  cfg.Processor,
		reconciler: cfg.Reconciler,
		alerter:    cfg.Alerter,
		presence:   maps.Clone(cfg.Presence),
		infra:      cfg.Infra,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// Snapshot assembles the admin health view. It never fails: each part
// that cannot be read is left empty and noted in Warnings.
func (s *Service) Snapshot(ctx context.Context, id billing.Identity) *Snapshot {
	snap := &Snapshot{
		GeneratedAt:  s.now().UTC(),
		Env:          maps.Clone(s.presence),
		RecentEvents: []AuditView{},
	}
	if snap.Env == nil {
		snap.Env = map[string]bool{}
	}

	var mu sync.Mutex
	warn := func(part string, err error) {
		s.logger.Debug("ops snapshot degraded", "part", part, "error", err)
		mu.Lock()
		defer mu.Unlock()
		snap.Warnings = append(snap.Warnings, fmt.Sprintf("%s: %v", part, err))
	}

	var sub *tenant.Subscription
	var g errgroup.Group

	g.Go(func() error {
		snap.Stripe = s.checkProcessor(ctx)
		return nil
	})
	g.Go(func() error {
		funnel, err := s.funnel(ctx)
		if err != nil {
			warn("funnel", err)
		}
		snap.Funnel = funnel
		return nil
	})
	g.Go(func() error {
		snap.Infrastructure = s.infra.collect(ctx)
		return nil
	})
	g.Go(func() error {
		sub = s.tenantView(ctx, id, snap, warn)
		return nil
	})

	//nolint:errcheck // every part degrades instead of failing
	_ = g.Wait()

	snap.BillingHealthy = BillingHealthy(sub, snap.Env)
	return snap
}

func (s *Service) checkProcessor(ctx context.Context) ProcessorCheck {
	if s.processor == nil {
		return ProcessorCheck{Message: "payments processor not wired"}
	}

	err := s.processor.Ping(ctx)
	var upstream *billing.UpstreamError
	switch {
	case err == nil:
		return ProcessorCheck{OK: true, Message: "ok"}
	case errors.Is(err, billing.ErrNotConfigured):
		return ProcessorCheck{Message: "stripe secret key not configured"}
	case errors.As(err, &upstream):
		return ProcessorCheck{Message: upstream.Message}
	default:
		return ProcessorCheck{Message: err.Error()}
	}
}

func (s *Service) funnel(ctx context.Context) (Funnel, error) {
	counts, err := s.store.CountAuditActions(ctx, billing.FunnelActions, s.now().Add(-FunnelWindow))
	if err != nil {
		return NewFunnel(0, 0, 0), err
	}
	return NewFunnel(
		counts[billing.ActionUpgradeClicked],
		counts[billing.ActionCheckoutSessionCreated],
		counts[billing.ActionCheckoutCompleted],
	), nil
}

// tenantView fills the tenant-scoped parts of the snapshot without
// creating anything for callers that have no tenant yet.
func (s *Service) tenantView(
	ctx context.Context,
	id billing.Identity,
	snap *Snapshot,
	warn func(string, error),
) *tenant.Subscription {
	if id.UserID == "" {
		warn("membership", core.ErrUnauthorized)
		return nil
	}

	m, err := s.store.GetMembershipByUser(ctx, id.UserID)
	if err != nil {
		warn("membership", err)
		return nil
	}
	snap.Membership = &MembershipView{HotelID: m.HotelID, Role: m.Role}

	var sub *tenant.Subscription
	var g errgroup.Group

	g.Go(func() error {
		got, err := s.store.GetSubscription(ctx, m.HotelID)
		if err != nil {
			warn("subscription", err)
			return nil
		}
		sub = got
		snap.Subscription = billing.ToSubscriptionResponse(got)
		return nil
	})
	g.Go(func() error {
		counts, err := s.store.CountPages(ctx, m.HotelID)
		if err != nil {
			warn("pages", err)
			return nil
		}
		snap.Pages = &PagesView{Total: counts.Total, Published: counts.Published}
		return nil
	})
	g.Go(func() error {
		entries, err := s.store.RecentAudit(ctx, m.HotelID, billing.ActionPrefix, RecentEventsLimit)
		if err != nil {
			warn("recent_events", err)
			return nil
		}
		snap.RecentEvents = toAuditViews(entries)
		return nil
	})

	//nolint:errcheck // parts degrade individually
	_ = g.Wait()
	return sub
}

type RecoveryResult struct {
	Action       string
	HotelID      string
	Subscription *tenant.Subscription
}

// Recover runs one named repair action against the caller's tenant.
func (s *Service) Recover(
	ctx context.Context,
	id billing.Identity,
	action string,
) (*RecoveryResult, error) {
	switch action {
	case ActionEnsureScope, ActionSyncSubscription:
	default:
		return nil, fmt.Errorf("recover %q: %w", action, ErrUnknownAction)
	}

	m, err := s.scopes.EnsureScope(ctx, id.UserID, id.Email)
	if err != nil {
		s.fail(ctx, "", action, err)
		return nil, fmt.Errorf("recover: %w", err)
	}

	var res *RecoveryResult
	if action == ActionEnsureScope {
		res, err = s.ensureScope(ctx, id, m.HotelID)
	} else {
		res, err = s.syncSubscription(ctx, id, m.HotelID)
	}
	if err != nil {
		s.fail(ctx, m.HotelID, action, err)
		return nil, fmt.Errorf("recover: %w", err)
	}
	return res, nil
}

func (s *Service) ensureScope(
	ctx context.Context,
	id billing.Identity,
	hotelID string,
) (*RecoveryResult, error) {
	sub, err := s.store.GetSubscription(ctx, hotelID)
	if err != nil {
		return nil, err
	}

	if err := billing.RecordAudit(ctx, s.store, hotelID, billing.ActionRecoveryScope,
		"Tenant scope ensured by administrator",
		map[string]any{"admin_user_id": id.UserID},
	); err != nil {
		return nil, err
	}

	return &RecoveryResult{Action: ActionEnsureScope, HotelID: hotelID, Subscription: sub}, nil
}

func (s *Service) syncSubscription(
	ctx context.Context,
	id billing.Identity,
	hotelID string,
) (*RecoveryResult, error) {
	stored, err := s.store.GetSubscription(ctx, hotelID)
	if err != nil {
		return nil, err
	}

	remote, err := s.locateSubscription(ctx, stored)
	if err != nil {
		return nil, err
	}

	sub, err := s.reconciler.Reconcile(ctx, billing.Reconciliation{
		HotelID:      hotelID,
		Subscription: remote,
		Source:       billing.SourceRecovery,
		Action:       billing.ActionRecoverySync,
		Message:      "Subscription synced by administrator",
		Metadata:     map[string]any{"admin_user_id": id.UserID},
	})
	if err != nil {
		return nil, err
	}

	return &RecoveryResult{Action: ActionSyncSubscription, HotelID: hotelID, Subscription: sub}, nil
}

// locateSubscription prefers the stored subscription id and otherwise
// searches the stored customer's subscriptions.
func (s *Service) locateSubscription(
	ctx context.Context,
	stored *tenant.Subscription,
) (*billing.RemoteSubscription, error) {
	if subID := stored.SubscriptionID(); subID != "" {
		return s.processor.GetSubscription(ctx, subID)
	}

	customerID := stored.CustomerID()
	if customerID == "" {
		return nil, fmt.Errorf("%w: %w", billing.ErrSubscriptionUnidentified, billing.ErrNoCustomer)
	}

	subs, err := s.processor.ListCustomerSubscriptions(ctx, customerID)
	if err != nil {
		return nil, err
	}

	picked := SelectSubscription(subs)
	if picked == nil {
		return nil, billing.ErrSubscriptionUnidentified
	}
	return picked, nil
}

// SelectSubscription returns the first active or trialing subscription,
// else the first one listed, else nil.
func SelectSubscription(subs []*billing.RemoteSubscription) *billing.RemoteSubscription {
	for _, sub := range subs {
		if sub != nil && (sub.Status == tenant.StatusActive || sub.Status == tenant.StatusTrialing) {
			return sub
		}
	}
	for _, sub := range subs {
		if sub != nil {
			return sub
		}
	}
	return nil
}

func (s *Service) fail(ctx context.Context, hotelID, action string, err error) {
	s.logger.Error("recovery action failed",
		"hotel_id", hotelID,
		"action", action,
		"error", err,
	)
	if hotelID != "" {
		if auditErr := billing.RecordAudit(ctx, s.store, hotelID, billing.ActionRecoveryFailed,
			"Recovery action failed",
			map[string]any{"action": action, "error": err.Error()},
		); auditErr != nil {
			s.logger.Error("audit write failed",
				"hotel_id", hotelID,
				"audit_action", billing.ActionRecoveryFailed,
				"error", auditErr,
			)
		}
	}
	if s.alerter == nil {
		return
	}
	fields := map[string]string{"action": action}
	if hotelID != "" {
		fields["hotel_id"] = hotelID
	}
	s.alerter.Fire(ctx, alert.Alert{
		Title:   "Billing recovery failed",
		Message: err.Error(),
		Fields:  fields,
	})
}
