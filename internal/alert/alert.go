// AngelaMos | 2026
// alert.go

package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carterperez-dev/templates/storefront-billing/internal/config"
)

const defaultTimeout = 5 * time.Second

type Alert struct {
	Title   string
	Message string
	Fields  map[string]string
	Time    time.Time
}

// Text renders the alert as plain text, fields sorted by key.
func (a Alert) Text() string {
	var b strings.Builder
	b.WriteString(a.Title)
	if a.Message != "" {
		b.WriteString("\n")
		b.WriteString(a.Message)
	}

	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, a.Fields[k])
	}

	if !a.Time.IsZero() {
		fmt.Fprintf(&b, "\nat: %s", a.Time.UTC().Format(time.RFC3339))
	}
	return b.String()
}

type Notifier interface {
	Name() string
	Notify(ctx context.Context, a Alert) error
}

// Dispatcher fans an alert out to every configured channel. A failing
// channel never affects the others or the caller.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewDispatcher(
	logger *slog.Logger,
	timeout time.Duration,
	notifiers ...Notifier,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		notifiers: notifiers,
		timeout:   timeout,
		logger:    logger,
	}
}

func NewFromConfig(cfg config.AlertConfig, logger *slog.Logger) *Dispatcher {
	var notifiers []Notifier
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, NewSlackNotifier(cfg.SlackWebhookURL, nil))
	}
	if cfg.PostmarkToken != "" && cfg.EmailTo != "" {
		notifiers = append(notifiers, NewPostmarkNotifier(PostmarkConfig{
			ServerToken: cfg.PostmarkToken,
			From:        cfg.EmailFrom,
			To:          cfg.EmailTo,
		}))
	}
	return NewDispatcher(logger, cfg.Timeout, notifiers...)
}

func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Notify delivers to all channels concurrently and returns the joined
// channel errors for callers that want them. Most callers use Fire.
func (d *Dispatcher) Notify(ctx context.Context, a Alert) error {
	if len(d.notifiers) == 0 {
		return nil
	}
	if a.Time.IsZero() {
		a.Time = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	errs := make([]error, len(d.notifiers))
	var wg sync.WaitGroup
	for i, n := range d.notifiers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.deliver(ctx, n, a)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", n.Name(), err)
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, n Notifier, a Alert) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("notifier panic: %v", p)
		}
		outcome := "sent"
		if err != nil {
			outcome = "failed"
			d.logger.Warn("alert delivery failed",
				"channel", n.Name(),
				"title", a.Title,
				"error", err,
			)
		}
		alertsTotal.WithLabelValues(n.Name(), outcome).Inc()
	}()

	return n.Notify(ctx, a)
}

// Fire delivers in the background, detached from the caller's
// cancellation. Errors are logged and discarded.
func (d *Dispatcher) Fire(ctx context.Context, a Alert) {
	if d == nil || len(d.notifiers) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.Notify(detached, a) //nolint:errcheck // logged per channel
	}()
}

// Wait blocks until in-flight Fire deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
