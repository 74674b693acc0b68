package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gymledger/pkg/httputil"
	"github.com/platinummonkey/gymledger/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 300,
		WindowDuration:    time.Minute,
	}
}

// Limiter decides whether one more request for key fits in the window
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Config() *RateLimitConfig
}

// RedisRateLimiter counts requests per fixed window in Redis so limits are
// shared by every API instance
type RedisRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewRedisRateLimiter creates a Redis-backed rate limiter
func NewRedisRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *RedisRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "gymledger:ratelimit"
	}

	return &RedisRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

// Allow increments the counter for key. The window starts with the first
// request and is not extended by later ones.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	if ttl.Val() < 0 {
		if err := rl.redis.Expire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return true, fmt.Errorf("redis error: %w", err)
		}
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// Config returns the limiter settings
func (rl *RedisRateLimiter) Config() *RateLimitConfig {
	return rl.config
}

// MemoryRateLimiter is the single-instance limiter used when Redis is not
// configured
type MemoryRateLimiter struct {
	config  *RateLimitConfig
	windows map[string]*window
	mu      sync.Mutex
}

type window struct {
	count   int
	resetAt time.Time
}

// NewMemoryRateLimiter creates an in-process rate limiter
func NewMemoryRateLimiter(config *RateLimitConfig) *MemoryRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	return &MemoryRateLimiter{
		config:  config,
		windows: make(map[string]*window),
	}
}

// Allow checks if a request is allowed for the given key
func (rl *MemoryRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(rl.config.WindowDuration)}
		rl.windows[key] = w
	}
	w.count++

	return w.count <= rl.config.RequestsPerWindow, nil
}

// Config returns the limiter settings
func (rl *MemoryRateLimiter) Config() *RateLimitConfig {
	return rl.config
}

// Cleanup removes expired windows
func (rl *MemoryRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
		}
	}
}

// StartCleanup starts a background goroutine to cleanup old windows
func (rl *MemoryRateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// RateLimitMiddleware limits requests per owner, or per client IP for
// requests that are not authenticated yet
type RateLimitMiddleware struct {
	limiter Limiter
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// Handler limits by the authenticated owner, falling back to the client IP.
// Limiter errors fail open.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + getClientIP(r)
		if ownerID, ok := OwnerID(r); ok {
			key = "owner:" + strconv.FormatInt(ownerID, 10)
		}
		m.limit(w, r, key, next)
	})
}

// ClientIPHandler limits by client IP only. It runs ahead of authentication
// so rejected credentials count against the caller too.
func (m *RateLimitMiddleware) ClientIPHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.limit(w, r, "ip:"+getClientIP(r), next)
	})
}

func (m *RateLimitMiddleware) limit(w http.ResponseWriter, r *http.Request, key string, next http.Handler) {
	allowed, err := m.limiter.Allow(r.Context(), key)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Rate limiter unavailable, allowing request")
		next.ServeHTTP(w, r)
		return
	}

	cfg := m.limiter.Config()
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
	if !allowed {
		w.Header().Set("Retry-After", fmt.Sprintf("%.0f", cfg.WindowDuration.Seconds()))
		httputil.WriteTooManyRequests(w, "rate limit exceeded")
		return
	}

	next.ServeHTTP(w, r)
}

func getClientIP(r *http.Request) string {
	// First hop of X-Forwarded-For when behind a proxy
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
