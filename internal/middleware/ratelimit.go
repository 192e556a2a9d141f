// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/carterperez-dev/templates/storefront-billing/internal/config"
	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
)

// RateLimitConfig describes one budget. Scope namespaces the bucket keys,
// usually the Redis key prefix plus the route group.
type RateLimitConfig struct {
	Limit   redis_rate.Limit
	Scope   string
	KeyFunc func(*http.Request) string
	Logger  *slog.Logger
}

// RateLimiter enforces a shared Redis budget per caller and degrades to
// an in-process token bucket while Redis is unreachable.
type RateLimiter struct {
	limiter  *redis_rate.Limiter
	fallback *localBuckets
	config   RateLimitConfig
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &RateLimiter{
		limiter:  redis_rate.NewLimiter(rdb),
		fallback: newLocalBuckets(),
		config:   cfg,
	}
}

// LimitFromConfig converts the configured window into a redis_rate limit.
func LimitFromConfig(cfg config.RateLimitConfig) redis_rate.Limit {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Requests
	}
	return redis_rate.Limit{
		Rate:   cfg.Requests,
		Burst:  burst,
		Period: window,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.key(r)

		res := rl.allow(r.Context(), key)
		setRateLimitHeaders(w.Header(), res, rl.config.Limit)

		if res.Allowed == 0 {
			retryAfter := max(int(res.RetryAfter.Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			core.JSONError(w, core.NewAppError(
				http.StatusTooManyRequests,
				"RATE_LIMITED",
				fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", retryAfter),
				nil,
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) key(r *http.Request) string {
	key := rl.config.KeyFunc(r)
	if rl.config.Scope == "" {
		return key
	}
	return strings.TrimSuffix(rl.config.Scope, ":") + ":" + key
}

func (rl *RateLimiter) allow(ctx context.Context, key string) *redis_rate.Result {
	res, err := rl.limiter.Allow(ctx, key, rl.config.Limit)
	if err == nil {
		return res
	}

	rl.config.Logger.Warn("redis rate limit unavailable, using local bucket",
		"key", key,
		"error", err,
	)
	return rl.fallback.allow(key, rl.config.Limit)
}

// KeyByIP buckets by client address. The last X-Forwarded-For hop is the
// one appended by our own proxy.
func KeyByIP(r *http.Request) string {
	return "ip:" + clientIP(r)
}

// KeyByUser buckets authenticated callers by subject and everyone else by
// client address. It must run after Authenticator.
func KeyByUser(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID
	}
	return KeyByIP(r)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func setRateLimitHeaders(h http.Header, res *redis_rate.Result, limit redis_rate.Limit) {
	h.Set("RateLimit-Policy", fmt.Sprintf("%d;w=%d", limit.Rate, int(limit.Period.Seconds())))
	h.Set("RateLimit", fmt.Sprintf("%d;t=%d", res.Remaining, int(res.ResetAfter.Seconds())))
}

const (
	bucketSweepInterval = 5 * time.Minute
	bucketIdleTTL       = 10 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// localBuckets is the per-process stand-in used while Redis is down.
type localBuckets struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func newLocalBuckets() *localBuckets {
	b := &localBuckets{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	go b.sweep()
	return b
}

func (b *localBuckets) sweep() {
	ticker := time.NewTicker(bucketSweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := b.now().Add(-bucketIdleTTL)
		b.mu.Lock()
		for key, bk := range b.buckets {
			if bk.lastSeen.Before(cutoff) {
				delete(b.buckets, key)
			}
		}
		b.mu.Unlock()
	}
}

func (b *localBuckets) allow(key string, limit redis_rate.Limit) *redis_rate.Result {
	perSecond := float64(limit.Rate) / limit.Period.Seconds()
	now := b.now()

	b.mu.Lock()
	bk, ok := b.buckets[key]
	if !ok {
		bk = &bucket{limiter: rate.NewLimiter(rate.Limit(perSecond), limit.Burst)}
		b.buckets[key] = bk
	}
	bk.lastSeen = now
	allowed := bk.limiter.AllowN(now, 1)
	remaining := max(int(bk.limiter.TokensAt(now)), 0)
	b.mu.Unlock()

	res := &redis_rate.Result{
		Limit:      limit,
		Remaining:  remaining,
		RetryAfter: -1,
		ResetAfter: time.Duration(float64(time.Second) / perSecond),
	}
	if allowed {
		res.Allowed = 1
	} else {
		res.RetryAfter = res.ResetAfter
	}
	return res
}
