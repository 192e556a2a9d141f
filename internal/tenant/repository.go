// AngelaMos | 2026
// repository.go

package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
)

// Repository is the tenant store. It is the only place billing state is
// persisted; row-level atomicity of each statement is relied on instead of
// application locks.
type Repository interface {
	EnsureSubscription(ctx context.Context, hotelID string) error
	GetSubscription(ctx context.Context, hotelID string) (*Subscription, error)
	ApplySubscription(
		ctx context.Context,
		hotelID string,
		u SubscriptionUpdate,
	) (*Subscription, error)
	SetCustomerID(ctx context.Context, hotelID, customerID string) error
	FindHotelBySubscriptionID(ctx context.Context, subscriptionID string) (string, error)
	FindHotelByCustomerID(ctx context.Context, customerID string) (string, error)

	GetMembershipByUser(ctx context.Context, userID string) (*Membership, error)
	CreateHotelForOwner(ctx context.Context, userID, name string) (*Membership, error)

	AppendAudit(ctx context.Context, entry AuditEntry) error
	CountAuditActions(
		ctx context.Context,
		actions []string,
		since time.Time,
	) (map[string]int, error)
	RecentAudit(
		ctx context.Context,
		hotelID, actionPrefix string,
		limit int,
	) ([]AuditEntry, error)
	CountPages(ctx context.Context, hotelID string) (PageCounts, error)
	Ping(ctx context.Context) error
}

type repository struct {
	db  core.DBTX
	txb core.TxBeginner
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db, txb: db}
}

const subscriptionColumns = `
	hotel_id, plan, status, max_published_pages, stripe_customer_id,
	stripe_subscription_id, stripe_price_id, current_period_end,
	created_at, updated_at`

func (r *repository) EnsureSubscription(ctx context.Context, hotelID string) error {
	if _, err := r.db.ExecContext(
		ctx,
		`SELECT ensure_hotel_subscription($1)`,
		hotelID,
	); err != nil {
		if core.IsMissingReferenceError(err) {
			return fmt.Errorf("ensure subscription %s: %w", hotelID, core.ErrNotFound)
		}
		return fmt.Errorf("ensure subscription: %w", err)
	}
	return nil
}

func (r *repository) GetSubscription(
	ctx context.Context,
	hotelID string,
) (*Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM hotel_subscriptions
		WHERE hotel_id = $1`

	var sub Subscription
	err := r.db.GetContext(ctx, &sub, query, hotelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get subscription: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	return &sub, nil
}

func (r *repository) ApplySubscription(
	ctx context.Context,
	hotelID string,
	u SubscriptionUpdate,
) (*Subscription, error) {
	query := `
		INSERT INTO hotel_subscriptions (
			hotel_id, status, plan, max_published_pages, current_period_end,
			stripe_customer_id, stripe_subscription_id, stripe_price_id, updated_at
		)
		VALUES ($1, $2, $3, $4, $5,
			NULLIF($6::text, ''), NULLIF($7::text, ''), NULLIF($8::text, ''), $9)
		ON CONFLICT (hotel_id) DO UPDATE SET
			status = EXCLUDED.status,
			plan = EXCLUDED.plan,
			max_published_pages = EXCLUDED.max_published_pages,
			current_period_end = EXCLUDED.current_period_end,
			stripe_customer_id = COALESCE(
				EXCLUDED.stripe_customer_id, hotel_subscriptions.stripe_customer_id),
			stripe_subscription_id = COALESCE(
				EXCLUDED.stripe_subscription_id, hotel_subscriptions.stripe_subscription_id),
			stripe_price_id = COALESCE(
				EXCLUDED.stripe_price_id, hotel_subscriptions.stripe_price_id),
			updated_at = EXCLUDED.updated_at
		RETURNING` + subscriptionColumns

	var sub Subscription
	err := r.db.GetContext(ctx, &sub, query,
		hotelID,
		u.Status,
		u.Plan,
		u.MaxPublishedPages,
		u.CurrentPeriodEnd,
		u.StripeCustomerID,
		u.StripeSubscriptionID,
		u.StripePriceID,
		u.UpdatedAt,
	)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("apply subscription: %w", core.ErrDuplicateKey)
		}
		if core.IsMissingReferenceError(err) {
			return nil, fmt.Errorf("apply subscription %s: %w", hotelID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("apply subscription: %w", err)
	}

	return &sub, nil
}

func (r *repository) SetCustomerID(
	ctx context.Context,
	hotelID, customerID string,
) error {
	query := `
		UPDATE hotel_subscriptions
		SET stripe_customer_id = $2, updated_at = NOW()
		WHERE hotel_id = $1`

	result, err := r.db.ExecContext(ctx, query, hotelID, customerID)
	if err != nil {
		return fmt.Errorf("set customer id: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set customer id: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("set customer id: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) FindHotelBySubscriptionID(
	ctx context.Context,
	subscriptionID string,
) (string, error) {
	return r.findHotel(ctx, "stripe_subscription_id", subscriptionID)
}

func (r *repository) FindHotelByCustomerID(
	ctx context.Context,
	customerID string,
) (string, error) {
	return r.findHotel(ctx, "stripe_customer_id", customerID)
}

func (r *repository) findHotel(
	ctx context.Context,
	column, value string,
) (string, error) {
	if value == "" {
		return "", fmt.Errorf("find hotel by %s: %w", column, core.ErrNotFound)
	}

	//nolint:gosec // column is one of two internal constants
	query := fmt.Sprintf(`
		SELECT hotel_id FROM hotel_subscriptions
		WHERE %s = $1
		ORDER BY updated_at DESC
		LIMIT 1`, column)

	var hotelID string
	err := r.db.GetContext(ctx, &hotelID, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("find hotel by %s: %w", column, core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("find hotel by %s: %w", column, err)
	}

	return hotelID, nil
}

func (r *repository) GetMembershipByUser(
	ctx context.Context,
	userID string,
) (*Membership, error) {
	query := `
		SELECT user_id, hotel_id, role, created_at
		FROM hotel_members
		WHERE user_id = $1`

	var m Membership
	err := r.db.GetContext(ctx, &m, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get membership: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}

	return &m, nil
}

func (r *repository) CreateHotelForOwner(
	ctx context.Context,
	userID, name string,
) (*Membership, error) {
	hotelID := uuid.New().String()
	var m Membership

	err := core.InTx(ctx, r.txb, nil, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO hotels (id, name, owner_user_id) VALUES ($1, $2, $3)`,
			hotelID, name, userID,
		); err != nil {
			return fmt.Errorf("insert hotel: %w", err)
		}

		err := tx.GetContext(ctx, &m, `
			INSERT INTO hotel_members (user_id, hotel_id, role)
			VALUES ($1, $2, $3)
			RETURNING user_id, hotel_id, role, created_at`,
			userID, hotelID, RoleOwner,
		)
		if err != nil {
			if core.IsDuplicateKeyError(err) {
				return fmt.Errorf("insert membership: %w", core.ErrDuplicateKey)
			}
			return fmt.Errorf("insert membership: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`SELECT ensure_hotel_subscription($1)`, hotelID,
		); err != nil {
			return fmt.Errorf("ensure subscription: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create hotel: %w", err)
	}

	return &m, nil
}

func (r *repository) AppendAudit(ctx context.Context, entry AuditEntry) error {
	query := `
		INSERT INTO audit_logs (hotel_id, action, message, metadata)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.ExecContext(ctx, query,
		entry.HotelID,
		entry.Action,
		entry.Message,
		entry.Metadata,
	); err != nil {
		return fmt.Errorf("append audit %s: %w", entry.Action, err)
	}

	return nil
}

func (r *repository) CountAuditActions(
	ctx context.Context,
	actions []string,
	since time.Time,
) (map[string]int, error) {
	query := `
		SELECT action, COUNT(*) AS n
		FROM audit_logs
		WHERE action = ANY($1) AND created_at >= $2
		GROUP BY action`

	var rows []struct {
		Action string `db:"action"`
		N      int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, actions, since); err != nil {
		return nil, fmt.Errorf("count audit actions: %w", err)
	}

	counts := make(map[string]int, len(actions))
	for _, a := range actions {
		counts[a] = 0
	}
	for _, row := range rows {
		counts[row.Action] = row.N
	}

	return counts, nil
}

func (r *repository) RecentAudit(
	ctx context.Context,
	hotelID, actionPrefix string,
	limit int,
) ([]AuditEntry, error) {
	query := `
		SELECT id, hotel_id, action, message, metadata, created_at
		FROM audit_logs
		WHERE hotel_id = $1 AND action LIKE $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	entries := []AuditEntry{}
	if err := r.db.SelectContext(ctx, &entries, query,
		hotelID,
		escapeLike(actionPrefix)+"%",
		limit,
	); err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}

	return entries, nil
}

func (r *repository) CountPages(
	ctx context.Context,
	hotelID string,
) (PageCounts, error) {
	query := `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE is_published) AS published
		FROM pages
		WHERE hotel_id = $1`

	var counts PageCounts
	if err := r.db.GetContext(ctx, &counts, query, hotelID); err != nil {
		return PageCounts{}, fmt.Errorf("count pages: %w", err)
	}

	return counts, nil
}

func (r *repository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.GetContext(ctx, &one, `SELECT 1`); err != nil {
		return fmt.Errorf("tenant store ping: %w", err)
	}
	return nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
