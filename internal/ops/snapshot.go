// AngelaMos | 2026
// snapshot.go

package ops

import (
	"math"
	"time"

	"github.com/carterperez-dev/templates/storefront-billing/internal/billing"
	"github.com/carterperez-dev/templates/storefront-billing/internal/tenant"
)

const (
	FunnelWindow      = 7 * 24 * time.Hour
	RecentEventsLimit = 10
)

type Snapshot struct {
	GeneratedAt    time.Time                     `json:"generated_at"`
	Env            map[string]bool               `json:"env"`
	Stripe         ProcessorCheck                `json:"stripe"`
	Membership     *MembershipView               `json:"membership"`
	Subscription   *billing.SubscriptionResponse `json:"subscription"`
	BillingHealthy bool                          `json:"billing_healthy"`
	Funnel         Funnel                        `json:"funnel"`
	Pages          *PagesView                    `json:"pages"`
	RecentEvents   []AuditView                   `json:"recent_events"`
	Infrastructure Infrastructure                `json:"infrastructure"`
	Warnings       []string                      `json:"warnings,omitempty"`
}

type ProcessorCheck struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type MembershipView struct {
	HotelID string `json:"hotel_id"`
	Role    string `json:"role"`
}

type PagesView struct {
	Total     int `json:"total"`
	Published int `json:"published"`
}

type AuditView struct {
	Action    string          `json:"action"`
	Message   string          `json:"message"`
	Metadata  tenant.Metadata `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// Funnel counts the three funnel actions over the trailing window.
// Rates are whole percentages.
type Funnel struct {
	WindowDays          int `json:"window_days"`
	UpgradeClicks       int `json:"upgrade_clicks"`
	CheckoutSessions    int `json:"checkout_sessions"`
	CheckoutsCompleted  int `json:"checkouts_completed"`
	ClickToCheckoutRate int `json:"click_to_checkout_rate"`
	CheckoutToPaidRate  int `json:"checkout_to_paid_rate"`
}

func NewFunnel(clicks, sessions, completed int) Funnel {
	return Funnel{
		WindowDays:          int(FunnelWindow / (24 * time.Hour)),
		UpgradeClicks:       clicks,
		CheckoutSessions:    sessions,
		CheckoutsCompleted:  completed,
		ClickToCheckoutRate: percent(sessions, clicks),
		CheckoutToPaidRate:  percent(completed, sessions),
	}
}

func percent(n, d int) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(float64(n) * 100 / float64(d)))
}

// BillingHealthy reports whether the tenant can take payments and receive
// processor updates.
func BillingHealthy(sub *tenant.Subscription, env map[string]bool) bool {
	if sub == nil || !env["stripe_secret_key"] || !env["stripe_webhook_secret"] {
		return false
	}
	return sub.Plan != tenant.PlanPro || sub.CustomerID() != ""
}

func toAuditViews(entries []tenant.AuditEntry) []AuditView {
	out := make([]AuditView, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditView{
			Action:    e.Action,
			Message:   e.Message,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
