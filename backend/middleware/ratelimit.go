package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter counts hits for a key within a fixed window starting at the
// key's first hit. Once the window has passed the next hit starts a new one.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type visitor struct {
	count int64
	start time.Time
}

// MemoryCounter keeps counts in process. Each instance of the server has its
// own view.
type MemoryCounter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	window   time.Duration
}

func NewMemoryCounter(window time.Duration) *MemoryCounter {
	mc := &MemoryCounter{
		visitors: make(map[string]*visitor),
		window:   window,
	}
	go mc.cleanup()
	return mc
}

// cleanup removes stale entries periodically
func (mc *MemoryCounter) cleanup() {
	for {
		time.Sleep(mc.window)
		mc.mu.Lock()
		for key, v := range mc.visitors {
			if time.Since(v.start) > mc.window {
				delete(mc.visitors, key)
			}
		}
		mc.mu.Unlock()
	}
}

func (mc *MemoryCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	v, exists := mc.visitors[key]
	if !exists || time.Since(v.start) >= window {
		mc.visitors[key] = &visitor{count: 1, start: time.Now()}
		return 1, nil
	}
	v.count++
	return v.count, nil
}

// RedisCounter shares counts between instances through Redis.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client, prefix: "ratelimit:"}
}

func (rc *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	key = rc.prefix + key
	count, err := rc.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	// Fixed window: the TTL is set by the first hit only.
	if count == 1 {
		if err := rc.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("redis expire: %w", err)
		}
	}
	return count, nil
}

// RateLimiter limits requests per client IP and route.
type RateLimiter struct {
	counter Counter
	limit   int
	window  time.Duration
}

// NewRateLimiter creates a rate limiter backed by an in-memory counter.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return NewRateLimiterWithCounter(NewMemoryCounter(window), limit, window)
}

func NewRateLimiterWithCounter(c Counter, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{counter: c, limit: limit, window: window}
}

// getIP extracts the client IP from the request
func getIP(r *http.Request) string {
	// Check X-Forwarded-For first (for reverse proxy setups)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Limit returns a middleware that rate limits requests. When the counter
// backend is unavailable requests are let through.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path + "|" + getIP(r)

		count, err := rl.counter.Incr(r.Context(), key, rl.window)
		if err != nil {
			slog.Warn("rate limiter unavailable", "source", "http", "error", err.Error())
			next.ServeHTTP(w, r)
			return
		}
		if count > int64(rl.limit) {
			w.Header().Set("Retry-After", fmt.Sprint(int(rl.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LimitFunc wraps a HandlerFunc
func (rl *RateLimiter) LimitFunc(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rl.Limit(next).ServeHTTP(w, r)
	}
}
