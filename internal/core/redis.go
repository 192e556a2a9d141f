// AngelaMos | 2026
// redis.go

package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/templates/storefront-billing/internal/config"
)

const redisPingTimeout = 5 * time.Second

// Redis is the shared connection used for webhook dedupe and rate
// limiting. Every key this service writes goes through Key so several
// deployments can share one instance.
type Redis struct {
	Client *redis.Client
	prefix string
}

func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.ClientName = strings.TrimSuffix(cfg.KeyPrefix, ":")

	r := NewRedisFromClient(redis.NewClient(opts), cfg.KeyPrefix)
	if err := r.Ping(ctx); err != nil {
		_ = r.Client.Close() //nolint:errcheck // connection never became usable
		return nil, err
	}

	return r, nil
}

// NewRedisFromClient wraps an existing client. Tests use it with miniredis.
func NewRedisFromClient(client *redis.Client, prefix string) *Redis {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Redis{Client: client, prefix: prefix}
}

// Key joins parts with ":" under the configured prefix.
func (r *Redis) Key(parts ...string) string {
	return r.prefix + strings.Join(parts, ":")
}

// Prefix is the namespace Key writes under, including the trailing colon.
func (r *Redis) Prefix() string {
	return r.prefix
}

func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := r.Client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *Redis) PoolStats() *redis.PoolStats {
	return r.Client.PoolStats()
}
