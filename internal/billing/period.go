// AngelaMos | 2026
// period.go

package billing

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
)

const recentInvoiceLimit = 10

// PeriodResolver derives the current billing period end. Failures in the
// fallback lookups are logged and degrade to the next strategy; a nil
// result means the period is unknown.
type PeriodResolver struct {
	processor Processor
	logger    *slog.Logger
	now       func() time.Time
}

func NewPeriodResolver(processor Processor, logger *slog.Logger) *PeriodResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodResolver{
		processor: processor,
		logger:    logger,
		now:       time.Now,
	}
}

func (r *PeriodResolver) Resolve(ctx context.Context, sub *RemoteSubscription) *time.Time {
	if sub == nil {
		return nil
	}

	ctx, span := core.StartSpan(ctx, "billing.resolve_period",
		attribute.String("subscription_id", sub.ID),
	)
	defer span.End()

	if ts := directPeriodEnd(sub); ts > 0 {
		span.SetAttributes(attribute.String("source", "subscription"))
		periodResolutions.WithLabelValues("subscription").Inc()
		return unixTime(ts)
	}

	if sub.CustomerID == "" {
		periodResolutions.WithLabelValues("unresolved").Inc()
		return nil
	}

	core.AddSpanEvent(ctx, "period.fallback", attribute.String("strategy", "invoice_preview"))
	if ts := r.fromPreview(ctx, sub); ts > 0 {
		span.SetAttributes(attribute.String("source", "invoice_preview"))
		periodResolutions.WithLabelValues("invoice_preview").Inc()
		return unixTime(ts)
	}

	core.AddSpanEvent(ctx, "period.fallback", attribute.String("strategy", "invoice_list"))
	if ts := r.fromInvoices(ctx, sub); ts > 0 {
		span.SetAttributes(attribute.String("source", "invoice_list"))
		periodResolutions.WithLabelValues("invoice_list").Inc()
		return unixTime(ts)
	}

	periodResolutions.WithLabelValues("unresolved").Inc()
	return nil
}

func directPeriodEnd(sub *RemoteSubscription) int64 {
	if sub.CurrentPeriodEnd > 0 {
		return sub.CurrentPeriodEnd
	}
	if sub.PeriodEnd > 0 {
		return sub.PeriodEnd
	}
	if sub.CurrentPeriod != nil && sub.CurrentPeriod.End > 0 {
		return sub.CurrentPeriod.End
	}
	if len(sub.Items) > 0 {
		item := sub.Items[0]
		if item.CurrentPeriodEnd > 0 {
			return item.CurrentPeriodEnd
		}
		if item.Period != nil && item.Period.End > 0 {
			return item.Period.End
		}
	}
	return 0
}

func (r *PeriodResolver) fromPreview(ctx context.Context, sub *RemoteSubscription) int64 {
	inv, err := r.processor.PreviewInvoice(ctx, sub.CustomerID, sub.ID)
	if err != nil {
		r.logger.Debug("invoice preview unavailable",
			"subscription_id", sub.ID,
			"error", err,
		)
		return 0
	}
	if inv == nil {
		return 0
	}
	if inv.PeriodEnd > 0 {
		return inv.PeriodEnd
	}
	if len(inv.LinePeriodEnds) > 0 {
		return inv.LinePeriodEnds[0]
	}
	return 0
}

// fromInvoices picks the soonest line period end that is not in the past,
// or the latest one overall when every period has ended.
func (r *PeriodResolver) fromInvoices(ctx context.Context, sub *RemoteSubscription) int64 {
	invoices, err := r.processor.ListInvoices(ctx, sub.CustomerID, sub.ID, recentInvoiceLimit)
	if err != nil {
		r.logger.Debug("invoice list unavailable",
			"subscription_id", sub.ID,
			"error", err,
		)
		return 0
	}

	now := r.now().Unix()
	var soonestFuture, latest int64
	for _, inv := range invoices {
		if inv == nil {
			continue
		}
		for _, end := range inv.LinePeriodEnds {
			if end <= 0 {
				continue
			}
			if end > latest {
				latest = end
			}
			if end >= now && (soonestFuture == 0 || end < soonestFuture) {
				soonestFuture = end
			}
		}
	}

	if soonestFuture > 0 {
		return soonestFuture
	}
	return latest
}

func unixTime(ts int64) *time.Time {
	t := time.Unix(ts, 0).UTC()
	return &t
}
