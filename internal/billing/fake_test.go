// AngelaMos | 2026
// fake_test.go

package billing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/carterperez-dev/templates/storefront-billing/internal/alert"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProcessor struct {
	mu sync.Mutex

	subs         map[string]*RemoteSubscription
	customerSubs map[string][]*RemoteSubscription
	getErr       error

	preview     *RemoteInvoice
	previewErr  error
	invoices    []*RemoteInvoice
	invoicesErr error

	customerID  string
	customerErr error
	checkoutURL string
	checkoutErr error
	portalURL   string

	calls     []string
	checkouts []CheckoutRequest
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		subs:         make(map[string]*RemoteSubscription),
		customerSubs: make(map[string][]*RemoteSubscription),
		customerID:   "cus_new",
		checkoutURL:  "https://checkout.stripe.test/session",
		portalURL:    "https://billing.stripe.test/portal",
	}
}

func (f *fakeProcessor) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeProcessor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeProcessor) GetSubscription(_ context.Context, id string) (*RemoteSubscription, error) {
	f.record("get_subscription")
	if f.getErr != nil {
		return nil, f.getErr
	}
	sub, ok := f.subs[id]
	if !ok {
		return nil, fmt.Errorf("get subscription %s: %w", id, ErrRemoteNotFound)
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeProcessor) ListCustomerSubscriptions(
	_ context.Context,
	customerID string,
) ([]*RemoteSubscription, error) {
	f.record("list_subscriptions")
	return f.customerSubs[customerID], nil
}

func (f *fakeProcessor) PreviewInvoice(_ context.Context, _, _ string) (*RemoteInvoice, error) {
	f.record("preview_invoice")
	return f.preview, f.previewErr
}

func (f *fakeProcessor) ListInvoices(_ context.Context, _, _ string, _ int) ([]*RemoteInvoice, error) {
	f.record("list_invoices")
	return f.invoices, f.invoicesErr
}

func (f *fakeProcessor) CreateCustomer(_ context.Context, _, _ string) (string, error) {
	f.record("create_customer")
	return f.customerID, f.customerErr
}

func (f *fakeProcessor) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (string, error) {
	f.record("create_checkout")
	f.mu.Lock()
	f.checkouts = append(f.checkouts, req)
	f.mu.Unlock()
	return f.checkoutURL, f.checkoutErr
}

func (f *fakeProcessor) CreatePortalSession(_ context.Context, _, _ string) (string, error) {
	f.record("create_portal")
	return f.portalURL, nil
}

func (f *fakeProcessor) Ping(context.Context) error {
	return nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (r *recordingAlerter) Fire(_ context.Context, a alert.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingAlerter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}
