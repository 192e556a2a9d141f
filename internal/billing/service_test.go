// AngelaMos | 2026
// service_test.go

package billing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
	"github.com/carterperez-dev/templates/storefront-billing/internal/tenant"
	"github.com/carterperez-dev/templates/storefront-billing/internal/tenant/tenanttest"
)

var testServiceConfig = ServiceConfig{
	AppBaseURL:         "https://app.example.com/",
	ProPriceID:         "price_pro",
	DefaultSuccessPath: "/dashboard?billing=success",
	DefaultCancelPath:  "/dashboard?billing=cancel",
	DefaultReturnPath:  "/dashboard",
}

type serviceFixture struct {
	store   *tenanttest.Store
	proc    *fakeProcessor
	alerter *recordingAlerter
	svc     *Service
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		store:   tenanttest.New(),
		proc:    newFakeProcessor(),
		alerter: &recordingAlerter{},
	}
	f.svc = NewService(
		f.store,
		tenant.NewService(f.store),
		f.proc,
		f.alerter,
		testServiceConfig,
		newNoopLogger(),
	)
	return f
}

func TestSafeRedirectPath(t *testing.T) {
	const fallback = "/dashboard"

	tests := []struct {
		in   string
		want string
	}{
		{"/dashboard?x=1", "/dashboard?x=1"},
		{"/settings/billing", "/settings/billing"},
		{"//evil.com", fallback},
		{"http://evil.com", fallback},
		{"https://evil.com/dashboard", fallback},
		{"/\\evil.com", fallback},
		{"evil.com", fallback},
		{"", fallback},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeRedirectPath(tt.in, fallback))
		})
	}
}

func TestCreateCheckoutForNewUser(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()

	res, err := f.svc.CreateCheckout(ctx, Identity{UserID: "user-1", Email: "owner@example.com"}, "", "//evil.com")
	require.NoError(t, err)

	m, err := f.store.GetMembershipByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, m.HotelID, res.HotelID)
	assert.Equal(t, f.proc.checkoutURL, res.URL)

	require.Len(t, f.proc.checkouts, 1)
	req := f.proc.checkouts[0]
	assert.Equal(t, m.HotelID, req.HotelID)
	assert.Equal(t, "user-1", req.UserID)
	assert.Equal(t, "cus_new", req.CustomerID)
	assert.Equal(t, "price_pro", req.PriceID)
	assert.Equal(t, "https://app.example.com/dashboard?billing=success", req.SuccessURL)
	assert.Equal(t, "https://app.example.com/dashboard?billing=cancel", req.CancelURL)

	assert.Equal(t, []string{"create_customer", "create_checkout"}, f.proc.Calls())

	sub, err := f.store.GetSubscription(ctx, m.HotelID)
	require.NoError(t, err)
	assert.Equal(t, "cus_new", sub.CustomerID())
	assert.Equal(t, tenant.PlanFree, sub.Plan)

	assert.Equal(t, []string{ActionCheckoutSessionCreated}, f.store.AuditActions())
}

func TestCreateCheckoutReusesCustomer(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	hotelID := f.store.SeedHotel("user-1")
	require.NoError(t, f.store.SetCustomerID(ctx, hotelID, "cus_existing"))

	_, err := f.svc.CreateCheckout(ctx, Identity{UserID: "user-1"}, "/welcome", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"create_checkout"}, f.proc.Calls())
	assert.Equal(t, "cus_existing", f.proc.checkouts[0].CustomerID)
	assert.Equal(t, "https://app.example.com/welcome", f.proc.checkouts[0].SuccessURL)
}

func TestCreateCheckoutFailureIsAuditedAndAlerted(t *testing.T) {
	f := newServiceFixture()
	f.proc.checkoutErr = &UpstreamError{Message: "No such price", Err: errors.New("400")}

	_, err := f.svc.CreateCheckout(context.Background(), Identity{UserID: "user-1"}, "", "")
	require.Error(t, err)

	assert.Equal(t, []string{ActionCheckoutFailed}, f.store.AuditActions())
	assert.Equal(t, 1, f.alerter.Count())

	appErr, ok := core.AsAppError(AppErrorFor(err))
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	assert.Equal(t, "No such price", appErr.Message)
}

func TestCreateCheckoutWithoutPrice(t *testing.T) {
	f := newServiceFixture()
	f.svc.cfg.ProPriceID = ""

	_, err := f.svc.CreateCheckout(context.Background(), Identity{UserID: "user-1"}, "", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, f.proc.Calls())
}

func TestCreatePortal(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()

	_, err := f.svc.CreatePortal(ctx, Identity{UserID: "user-1"}, "")
	assert.ErrorIs(t, err, ErrNoCustomer)

	m, err := f.store.GetMembershipByUser(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.store.SetCustomerID(ctx, m.HotelID, "cus_1"))

	url, err := f.svc.CreatePortal(ctx, Identity{UserID: "user-1"}, "/account")
	require.NoError(t, err)
	assert.Equal(t, f.proc.portalURL, url)
	assert.Equal(t, []string{ActionPortalSessionCreated}, f.store.AuditActions())
}

func TestCreatePortalStoreFailureIsAuditedAndAlerted(t *testing.T) {
	f := newServiceFixture()
	f.store.FailGetSubscription = errors.New("connection reset")

	_, err := f.svc.CreatePortal(context.Background(), Identity{UserID: "user-1"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	entries := f.store.Audit()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionCheckoutFailed, entries[0].Action)
	assert.Equal(t, "portal", entries[0].Metadata["flow"])
	assert.Equal(t, 1, f.alerter.Count())
	assert.Empty(t, f.proc.Calls())
}

func TestRecordUpgradeClick(t *testing.T) {
	f := newServiceFixture()

	require.NoError(t, f.svc.RecordUpgradeClick(context.Background(), Identity{UserID: "user-1"}, "pages_limit"))

	entries := f.store.Audit()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionUpgradeClicked, entries[0].Action)
	assert.Equal(t, "pages_limit", entries[0].Metadata["placement"])
	require.NotNil(t, entries[0].HotelID)
}

func TestSubscriptionEnsuresScope(t *testing.T) {
	f := newServiceFixture()

	sub, err := f.svc.Subscription(context.Background(), Identity{UserID: "user-9"})
	require.NoError(t, err)
	assert.Equal(t, tenant.PlanFree, sub.Plan)
	assert.Equal(t, QuotaFree, sub.MaxPublishedPages)
}
