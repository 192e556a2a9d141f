// AngelaMos | 2026
// webhook_test.go

package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
	"github.com/carterperez-dev/templates/storefront-billing/internal/tenant"
	"github.com/carterperez-dev/templates/storefront-billing/internal/tenant/tenanttest"
)

const testWebhookSecret = "whsec_test_secret"

type webhookFixture struct {
	store   *tenanttest.Store
	proc    *fakeProcessor
	alerter *recordingAlerter
	handler *WebhookHandler
	redis   *miniredis.Miniredis
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &webhookFixture{
		store:   tenanttest.New(),
		proc:    newFakeProcessor(),
		alerter: &recordingAlerter{},
		redis:   mr,
	}
	f.handler = NewWebhookHandler(WebhookConfig{
		Secret:     testWebhookSecret,
		Reconciler: newTestReconciler(f.store, f.proc),
		Processor:  f.proc,
		Store:      f.store,
		Deduper:    NewEventDeduper(rdb, "test:", time.Hour),
		Alerter:    f.alerter,
		Logger:     newNoopLogger(),
	})
	return f
}

func eventJSON(t *testing.T, id, eventType string, object any) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":      id,
		"object":  "event",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": object},
	})
	require.NoError(t, err)
	return string(b)
}

func signedWebhookRequest(t *testing.T, secret, payload string) *http.Request {
	t.Helper()

	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/billing/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (f *webhookFixture) deliver(t *testing.T, payload string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, signedWebhookRequest(t, testWebhookSecret, payload))
	return rec
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	f := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/billing/webhook", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing Stripe signature")
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	f := newWebhookFixture(t)

	payload := eventJSON(t, "evt_bad", "customer.subscription.updated", map[string]any{"id": "sub_1"})
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, signedWebhookRequest(t, "whsec_wrong", payload))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid Stripe signature")
	assert.Empty(t, f.store.Audit())
}

func TestWebhookWithoutSecretIsUnavailable(t *testing.T) {
	h := NewWebhookHandler(WebhookConfig{Logger: newNoopLogger()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedWebhookRequest(t, testWebhookSecret, `{}`))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhookIgnoresUnknownEventTypes(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.deliver(t, eventJSON(t, "evt_unknown", "customer.created", map[string]any{"id": "cus_1"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.store.Audit())
	assert.Empty(t, f.proc.Calls())
}

func TestWebhookPastDueViaStoredSubscriptionID(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	hotelID := f.store.SeedHotel("user-1")
	_, err := f.store.ApplySubscription(ctx, hotelID, tenant.SubscriptionUpdate{
		Status:               tenant.StatusActive,
		Plan:                 tenant.PlanPro,
		MaxPublishedPages:    QuotaPro,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		UpdatedAt:            time.Now(),
	})
	require.NoError(t, err)

	f.proc.subs["sub_1"] = &RemoteSubscription{ID: "sub_1", CustomerID: "cus_1", Status: "past_due"}

	rec := f.deliver(t, eventJSON(t, "evt_1", "customer.subscription.updated", map[string]any{
		"id":       "sub_1",
		"object":   "subscription",
		"customer": "cus_1",
		"status":   "past_due",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sub, err := f.store.GetSubscription(ctx, hotelID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusPastDue, sub.Status)
	assert.Equal(t, tenant.PlanPro, sub.Plan)
	assert.Equal(t, 1000, sub.MaxPublishedPages)
	assert.Contains(t, f.store.AuditActions(), ActionSubscriptionUpdated)
}

func TestWebhookPrefersLiveSubscriptionOverPayload(t *testing.T) {
	f := newWebhookFixture(t)
	hotelID := f.store.SeedHotel("user-1")

	f.proc.subs["sub_1"] = &RemoteSubscription{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     "canceled",
		Metadata:   map[string]string{MetadataHotelID: hotelID},
	}

	rec := f.deliver(t, eventJSON(t, "evt_stale", "customer.subscription.updated", map[string]any{
		"id":       "sub_1",
		"customer": "cus_1",
		"status":   "active",
		"metadata": map[string]string{MetadataHotelID: hotelID},
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	sub, err := f.store.GetSubscription(context.Background(), hotelID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusCanceled, sub.Status)
	assert.Equal(t, tenant.PlanFree, sub.Plan)
}

func TestWebhookDeletedSubscriptionMissingAtStripe(t *testing.T) {
	f := newWebhookFixture(t)
	hotelID := f.store.SeedHotel("user-1")

	rec := f.deliver(t, eventJSON(t, "evt_del", "customer.subscription.deleted", map[string]any{
		"id":       "sub_gone",
		"customer": "cus_1",
		"status":   "canceled",
		"metadata": map[string]string{MetadataHotelID: hotelID},
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	sub, err := f.store.GetSubscription(context.Background(), hotelID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusCanceled, sub.Status)
	assert.Equal(t, "sub_gone", sub.SubscriptionID())
	assert.Contains(t, f.store.AuditActions(), ActionSubscriptionDeleted)
}

func TestWebhookCheckoutCompleted(t *testing.T) {
	f := newWebhookFixture(t)
	hotelID := f.store.SeedHotel("user-1")
	f.proc.subs["sub_new"] = &RemoteSubscription{
		ID:               "sub_new",
		CustomerID:       "cus_1",
		Status:           "trialing",
		CurrentPeriodEnd: 1_800_000_000,
		Items:            []RemoteItem{{PriceID: "price_pro"}},
	}

	rec := f.deliver(t, eventJSON(t, "evt_co", "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"mode":         "subscription",
		"customer":     "cus_1",
		"subscription": "sub_new",
		"metadata":     map[string]string{MetadataHotelID: hotelID},
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	sub, err := f.store.GetSubscription(context.Background(), hotelID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusTrialing, sub.Status)
	assert.Equal(t, tenant.PlanPro, sub.Plan)
	assert.Equal(t, "sub_new", sub.SubscriptionID())

	entries := f.store.Audit()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionCheckoutCompleted, entries[0].Action)
	assert.Equal(t, "cs_1", entries[0].Metadata["checkout_session_id"])
}

func TestWebhookCheckoutCompletedWithoutSubscriptionID(t *testing.T) {
	f := newWebhookFixture(t)
	hotelID := f.store.SeedHotel("user-1")

	rec := f.deliver(t, eventJSON(t, "evt_co2", "checkout.session.completed", map[string]any{
		"id":                  "cs_2",
		"mode":                "subscription",
		"customer":            "cus_2",
		"client_reference_id": hotelID,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	sub, err := f.store.GetSubscription(context.Background(), hotelID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusActive, sub.Status)
	assert.Equal(t, tenant.PlanPro, sub.Plan)
	assert.Equal(t, "cus_2", sub.CustomerID())
	assert.Empty(t, f.proc.Calls())
}

func TestWebhookIgnoresPaymentModeCheckout(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.deliver(t, eventJSON(t, "evt_pay", "checkout.session.completed", map[string]any{
		"id":   "cs_3",
		"mode": "payment",
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.store.Audit())
}

func TestWebhookInvoiceEventRefetchesSubscription(t *testing.T) {
	f := newWebhookFixture(t)
	hotelID := f.store.SeedHotel("user-1")
	f.proc.subs["sub_1"] = &RemoteSubscription{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     "past_due",
		Metadata:   map[string]string{MetadataHotelID: hotelID},
	}

	rec := f.deliver(t, eventJSON(t, "evt_inv", "invoice.payment_failed", map[string]any{
		"id":       "in_1",
		"customer": "cus_1",
		"parent": map[string]any{
			"subscription_details": map[string]any{"subscription": "sub_1"},
		},
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	sub, err := f.store.GetSubscription(context.Background(), hotelID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusPastDue, sub.Status)
	assert.Equal(t, []string{ActionInvoiceEvent}, f.store.AuditActions())
}

func TestWebhookUnresolvedTenantIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.deliver(t, eventJSON(t, "evt_orphan", "customer.subscription.updated", map[string]any{
		"id":       "sub_orphan",
		"customer": "cus_orphan",
		"status":   "active",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	entries := f.store.Audit()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionWebhookFailed, entries[0].Action)
	assert.Nil(t, entries[0].HotelID)
	assert.Equal(t, "tenant_unresolved", entries[0].Metadata["reason"])
}

func TestWebhookCheckoutForMissingSubscriptionIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	hotelID := f.store.SeedHotel("user-1")

	rec := f.deliver(t, eventJSON(t, "evt_co_gone", "checkout.session.completed", map[string]any{
		"id":           "cs_gone",
		"mode":         "subscription",
		"customer":     "cus_1",
		"subscription": "sub_vanished",
		"metadata":     map[string]string{MetadataHotelID: hotelID},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	entries := f.store.Audit()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionWebhookFailed, entries[0].Action)
	assert.Equal(t, "subscription_missing", entries[0].Metadata["reason"])
	assert.True(t, f.redis.Exists("test:billing:webhook:event:evt_co_gone"))

	sub, err := f.store.GetSubscription(context.Background(), hotelID)
	require.NoError(t, err)
	assert.Equal(t, tenant.PlanFree, sub.Plan)
}

func TestWebhookCheckoutWithMalformedHotelID(t *testing.T) {
	f := newWebhookFixture(t)
	f.proc.subs["sub_x"] = &RemoteSubscription{ID: "sub_x", CustomerID: "cus_unknown", Status: "active"}

	rec := f.deliver(t, eventJSON(t, "evt_co_bad", "checkout.session.completed", map[string]any{
		"id":           "cs_bad",
		"mode":         "subscription",
		"customer":     "cus_unknown",
		"subscription": "sub_x",
		"metadata":     map[string]string{MetadataHotelID: "not-a-uuid"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	entries := f.store.Audit()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionWebhookFailed, entries[0].Action)
	assert.Nil(t, entries[0].HotelID)
	assert.Equal(t, "tenant_unresolved", entries[0].Metadata["reason"])
	assert.Zero(t, f.alerter.Count())
}

func TestWebhookMalformedHotelIDFallsBackToStoredCustomer(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	hotelID := f.store.SeedHotel("user-1")
	require.NoError(t, f.store.SetCustomerID(ctx, hotelID, "cus_1"))
	f.proc.subs["sub_1"] = &RemoteSubscription{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     "active",
		Items:      []RemoteItem{{PriceID: "price_pro"}},
	}

	rec := f.deliver(t, eventJSON(t, "evt_co_fallback", "checkout.session.completed", map[string]any{
		"id":           "cs_fb",
		"mode":         "subscription",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"metadata":     map[string]string{MetadataHotelID: "hotel one"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sub, err := f.store.GetSubscription(ctx, hotelID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusActive, sub.Status)
	assert.Equal(t, []string{ActionCheckoutCompleted}, f.store.AuditActions())
}

func TestWebhookCheckoutForDeletedHotelIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	hotelID := f.store.SeedHotel("user-1")
	f.store.FailEnsure = fmt.Errorf("hotel %s: %w", hotelID, core.ErrNotFound)
	f.proc.subs["sub_new"] = &RemoteSubscription{ID: "sub_new", CustomerID: "cus_1", Status: "active"}

	rec := f.deliver(t, eventJSON(t, "evt_co_deleted", "checkout.session.completed", map[string]any{
		"id":           "cs_del",
		"mode":         "subscription",
		"customer":     "cus_1",
		"subscription": "sub_new",
		"metadata":     map[string]string{MetadataHotelID: hotelID},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	entries := f.store.Audit()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionWebhookFailed, entries[0].Action)
	assert.Equal(t, "tenant_unresolved", entries[0].Metadata["reason"])
	assert.Equal(t, "sub_new", entries[0].Metadata["stripe_subscription_id"])
	assert.Zero(t, f.alerter.Count())
}

func TestWebhookDedupesProcessedEvents(t *testing.T) {
	f := newWebhookFixture(t)
	hotelID := f.store.SeedHotel("user-1")
	f.proc.subs["sub_1"] = &RemoteSubscription{
		ID:       "sub_1",
		Status:   "active",
		Metadata: map[string]string{MetadataHotelID: hotelID},
	}
	payload := eventJSON(t, "evt_dup", "customer.subscription.updated", map[string]any{"id": "sub_1"})

	require.Equal(t, http.StatusOK, f.deliver(t, payload).Code)
	second := f.deliver(t, payload)

	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), `"duplicate":true`)
	assert.Len(t, f.store.Audit(), 1)
	assert.True(t, f.redis.Exists("test:billing:webhook:event:evt_dup"))
}

func TestWebhookFailureIsRetriedNotDeduped(t *testing.T) {
	f := newWebhookFixture(t)
	f.proc.getErr = &UpstreamError{Message: "api unavailable", Err: errors.New("503")}
	payload := eventJSON(t, "evt_fail", "customer.subscription.updated", map[string]any{"id": "sub_1"})

	first := f.deliver(t, payload)
	second := f.deliver(t, payload)

	assert.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Equal(t, http.StatusInternalServerError, second.Code)
	assert.False(t, f.redis.Exists("test:billing:webhook:event:evt_fail"))
	assert.Equal(t, 2, f.alerter.Count())
	assert.Equal(t, []string{ActionWebhookFailed, ActionWebhookFailed}, f.store.AuditActions())
}

func TestWebhookFailsOpenWhenRedisIsDown(t *testing.T) {
	f := newWebhookFixture(t)
	hotelID := f.store.SeedHotel("user-1")
	f.proc.subs["sub_1"] = &RemoteSubscription{
		ID:       "sub_1",
		Status:   "active",
		Metadata: map[string]string{MetadataHotelID: hotelID},
	}
	f.redis.Close()

	rec := f.deliver(t, eventJSON(t, "evt_nr", "customer.subscription.updated", map[string]any{"id": "sub_1"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{ActionSubscriptionUpdated}, f.store.AuditActions())
}
