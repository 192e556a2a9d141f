// AngelaMos | 2026
// entity.go

package tenant

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

const (
	StatusTrialing = "trialing"
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

const RoleOwner = "owner"

type Membership struct {
	UserID    string    `db:"user_id"`
	HotelID   string    `db:"hotel_id"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
}

type Subscription struct {
	HotelID              string     `db:"hotel_id"`
	Plan                 string     `db:"plan"`
	Status               string     `db:"status"`
	MaxPublishedPages    int        `db:"max_published_pages"`
	StripeCustomerID     *string    `db:"stripe_customer_id"`
	StripeSubscriptionID *string    `db:"stripe_subscription_id"`
	StripePriceID        *string    `db:"stripe_price_id"`
	CurrentPeriodEnd     *time.Time `db:"current_period_end"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

func (s *Subscription) CustomerID() string {
	if s == nil || s.StripeCustomerID == nil {
		return ""
	}
	return *s.StripeCustomerID
}

func (s *Subscription) SubscriptionID() string {
	if s == nil || s.StripeSubscriptionID == nil {
		return ""
	}
	return *s.StripeSubscriptionID
}

// SubscriptionUpdate is a full overwrite of the billing state, period end
// included. Empty external references keep the stored value.
type SubscriptionUpdate struct {
	Status               string
	Plan                 string
	MaxPublishedPages    int
	CurrentPeriodEnd     *time.Time
	StripeCustomerID     string
	StripeSubscriptionID string
	StripePriceID        string
	UpdatedAt            time.Time
}

type AuditEntry struct {
	ID        int64     `db:"id"`
	HotelID   *string   `db:"hotel_id"`
	Action    string    `db:"action"`
	Message   string    `db:"message"`
	Metadata  Metadata  `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}

type PageCounts struct {
	Total     int `db:"total"`
	Published int `db:"published"`
}

// Metadata is stored as jsonb.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan metadata: unsupported type %T", src)
	}

	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan metadata: %w", err)
	}
	*m = out
	return nil
}
