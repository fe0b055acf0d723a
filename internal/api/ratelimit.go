package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/config"
)

// limiterCleanupInterval is how often idle per-caller limiters are reaped.
// Entries untouched for twice this interval are removed.
const limiterCleanupInterval = 5 * time.Minute

// callerLimiter holds the token bucket for one caller plus its last access
// time, so idle entries can be cleaned up.
type callerLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// rateLimiter enforces a per-caller request rate. Authenticated requests are
// keyed by user ID, everything else by client IP.
type rateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*callerLimiter

	stopCh chan struct{}
}

// newRateLimiter creates a rate limiter from config and starts the
// background cleanup loop. Call Stop() to release it.
func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		limit:    rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		burst:    cfg.Burst,
		limiters: make(map[string]*callerLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop terminates the cleanup goroutine.
func (rl *rateLimiter) Stop() {
	close(rl.stopCh)
}

// middleware limits requests per caller and responds 429 when the bucket is
// empty. Retry-After estimates when the next token becomes available.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(callerKey(r)) {
			retryAfterSec := int(math.Ceil(1.0 / float64(rl.limit)))
			if retryAfterSec < 1 {
				retryAfterSec = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerKey identifies the caller for rate limiting purposes.
func callerKey(r *http.Request) string {
	if claims, ok := sessionFromContext(r.Context()); ok {
		return "user:" + claims.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// allow reports whether the caller may proceed, creating the caller's bucket
// on first sight.
func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	cl, ok := rl.limiters[key]
	if !ok {
		cl = &callerLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastAccess = time.Now()
	rl.mu.Unlock()

	return cl.limiter.Allow()
}

// cleanupLoop periodically removes limiters for callers that have gone idle.
func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *rateLimiter) cleanup() {
	ttl := limiterCleanupInterval * 2
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.limiters, key)
		}
	}
}
