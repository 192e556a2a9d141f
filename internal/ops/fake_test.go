// AngelaMos | 2026
// fake_test.go

package ops_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/carterperez-dev/templates/storefront-billing/internal/alert"
	"github.com/carterperez-dev/templates/storefront-billing/internal/billing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubProcessor struct {
	pingErr      error
	subs         map[string]*billing.RemoteSubscription
	customerSubs map[string][]*billing.RemoteSubscription
	listed       []string
}

func newStubProcessor() *stubProcessor {
	return &stubProcessor{
		subs:         make(map[string]*billing.RemoteSubscription),
		customerSubs: make(map[string][]*billing.RemoteSubscription),
	}
}

func (p *stubProcessor) GetSubscription(
	_ context.Context,
	id string,
) (*billing.RemoteSubscription, error) {
	sub, ok := p.subs[id]
	if !ok {
		return nil, fmt.Errorf("get subscription %s: %w", id, billing.ErrRemoteNotFound)
	}
	return sub, nil
}

func (p *stubProcessor) ListCustomerSubscriptions(
	_ context.Context,
	customerID string,
) ([]*billing.RemoteSubscription, error) {
	p.listed = append(p.listed, customerID)
	return p.customerSubs[customerID], nil
}

func (p *stubProcessor) PreviewInvoice(
	context.Context,
	string,
	string,
) (*billing.RemoteInvoice, error) {
	return nil, billing.ErrRemoteNotFound
}

func (p *stubProcessor) ListInvoices(
	context.Context,
	string,
	string,
	int,
) ([]*billing.RemoteInvoice, error) {
	return nil, nil
}

func (p *stubProcessor) CreateCustomer(context.Context, string, string) (string, error) {
	return "cus_stub", nil
}

func (p *stubProcessor) CreateCheckoutSession(context.Context, billing.CheckoutRequest) (string, error) {
	return "https://checkout.stripe.test", nil
}

func (p *stubProcessor) CreatePortalSession(context.Context, string, string) (string, error) {
	return "https://billing.stripe.test", nil
}

func (p *stubProcessor) Ping(context.Context) error {
	return p.pingErr
}

type captureAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (c *captureAlerter) Fire(_ context.Context, a alert.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
}

func (c *captureAlerter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}
