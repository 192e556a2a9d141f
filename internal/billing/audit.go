// AngelaMos | 2026
// audit.go

package billing

import (
	"context"
	"fmt"

	"github.com/carterperez-dev/templates/storefront-billing/internal/tenant"
)

const (
	ActionUpgradeClicked         = "billing.upgrade_clicked"
	ActionCheckoutSessionCreated = "billing.checkout_session_created"
	ActionCheckoutCompleted      = "billing.checkout_completed"
	ActionSubscriptionUpdated    = "billing.subscription_updated"
	ActionSubscriptionDeleted    = "billing.subscription_deleted"
	ActionInvoiceEvent           = "billing.invoice_event"
	ActionPortalSessionCreated   = "billing.portal_session_created"
	ActionCheckoutFailed         = "billing.checkout_failed"
	ActionWebhookFailed          = "billing.webhook_failed"
	ActionRecoverySync           = "billing.recovery_sync"
	ActionRecoveryScope          = "billing.recovery_scope"
	ActionRecoveryFailed         = "billing.recovery_failed"
)

const ActionPrefix = "billing."

// FunnelActions are counted, in order, for the conversion funnel.
var FunnelActions = []string{
	ActionUpgradeClicked,
	ActionCheckoutSessionCreated,
	ActionCheckoutCompleted,
}

type Auditor interface {
	AppendAudit(ctx context.Context, entry tenant.AuditEntry) error
}

// RecordAudit appends one entry. An empty hotelID records a global entry.
func RecordAudit(
	ctx context.Context,
	store Auditor,
	hotelID, action, message string,
	metadata map[string]any,
) error {
	entry := tenant.AuditEntry{
		Action:   action,
		Message:  message,
		Metadata: tenant.Metadata(metadata),
	}
	if hotelID != "" {
		entry.HotelID = &hotelID
	}
	if err := store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}
