// AngelaMos | 2026
// dedupe.go

package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dedupeKeySpace   = "billing:webhook:event:"
	defaultDedupeTTL = 72 * time.Hour
)

// EventDeduper remembers processed webhook event ids. Only successful
// events are marked so failed deliveries are retried by redelivery.
type EventDeduper struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewEventDeduper stores markers under prefix, the deployment's Redis
// namespace.
func NewEventDeduper(rdb *redis.Client, prefix string, ttl time.Duration) *EventDeduper {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &EventDeduper{rdb: rdb, prefix: prefix + dedupeKeySpace, ttl: ttl}
}

func (d *EventDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.rdb.Exists(ctx, d.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe lookup: %w", err)
	}
	return n > 0, nil
}

func (d *EventDeduper) Mark(ctx context.Context, eventID string) error {
	if err := d.rdb.Set(ctx, d.prefix+eventID, time.Now().Unix(), d.ttl).Err(); err != nil {
		return fmt.Errorf("dedupe mark: %w", err)
	}
	return nil
}
