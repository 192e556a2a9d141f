// AngelaMos | 2026
// alert_test.go

package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubNotifier struct {
	name  string
	err   error
	calls atomic.Int32
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Notify(context.Context, Alert) error {
	s.calls.Add(1)
	return s.err
}

func TestAlertText(t *testing.T) {
	a := Alert{
		Title:   "checkout failed",
		Message: "stripe unavailable",
		Fields:  map[string]string{"z": "last", "hotel_id": "h1"},
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	assert.Equal(t,
		"checkout failed\nstripe unavailable\nhotel_id: h1\nz: last\nat: 2026-01-02T03:04:05Z",
		a.Text(),
	)
}

func TestDispatcherIsolatesChannelFailures(t *testing.T) {
	broken := &stubNotifier{name: "slack", err: errors.New("boom")}
	healthy := &stubNotifier{name: "email"}

	d := NewDispatcher(newNoopLogger(), time.Second, broken, healthy)
	err := d.Notify(context.Background(), Alert{Title: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack: boom")
	assert.EqualValues(t, 1, broken.calls.Load())
	assert.EqualValues(t, 1, healthy.calls.Load())
}

func TestFireSurvivesCanceledCaller(t *testing.T) {
	n := &stubNotifier{name: "slack"}
	d := NewDispatcher(newNoopLogger(), time.Second, n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Fire(ctx, Alert{Title: "x"})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, d.Wait(waitCtx))
	assert.EqualValues(t, 1, n.calls.Load())
}

func TestFireWithoutChannelsIsNoop(t *testing.T) {
	var d *Dispatcher
	d.Fire(context.Background(), Alert{Title: "x"})

	d = NewDispatcher(nil, 0)
	d.Fire(context.Background(), Alert{Title: "x"})
	assert.Empty(t, d.Channels())
}

func TestSlackNotifier(t *testing.T) {
	var got slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, srv.Client())
	require.NoError(t, n.Notify(context.Background(), Alert{Title: "webhook failed"}))
	assert.Equal(t, "webhook failed", got.Text)
}

func TestSlackNotifierNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no_service", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewSlackNotifier(srv.URL, srv.Client()).Notify(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestPostmarkNotifier(t *testing.T) {
	var got postmarkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token-1", r.Header.Get("X-Postmark-Server-Token"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewPostmarkNotifier(PostmarkConfig{
		ServerToken: "token-1",
		From:        "ops@example.com",
		To:          "oncall@example.com",
		Endpoint:    srv.URL,
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, n.Notify(context.Background(), Alert{Title: "recovery failed"}))

	assert.Equal(t, "[ops] recovery failed", got.Subject)
	assert.Equal(t, "oncall@example.com", got.To)
	assert.Equal(t, "ops-alert", got.Tag)
}

func TestPostmarkNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"ErrorCode":300,"Message":"Invalid email request"}`))
	}))
	defer srv.Close()

	n := NewPostmarkNotifier(PostmarkConfig{Endpoint: srv.URL, HTTPClient: srv.Client()})
	err := n.Notify(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code=300")
}
