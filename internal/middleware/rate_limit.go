package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc derives the limiter key for a request
type KeyFunc func(c *gin.Context) string

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token bucket guarding the relay against request bursts.
// It sits in front of the hourly submission quota and never records sends.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
}

// NewRateLimiter allows limit requests per second per key with the given burst.
// Keys idle long enough for their bucket to refill are forgotten until ctx is done.
func NewRateLimiter(ctx context.Context, limit rate.Limit, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		idleTTL:  refillTime(limit, burst),
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.sweep(now)
			}
		}
	}()

	return rl
}

// refillTime is how long an empty bucket takes to fill, never under a minute
func refillTime(limit rate.Limit, burst int) time.Duration {
	ttl := time.Minute
	if limit > 0 && limit != rate.Inf {
		if full := time.Duration(float64(burst) / float64(limit) * float64(time.Second)); full > ttl {
			ttl = full
		}
	}
	return ttl
}

// reserve takes a token for key at now and reports how long the caller must
// wait for it. A token that must be waited for is handed back immediately.
func (rl *RateLimiter) reserve(key string, now time.Time) (*rate.Reservation, time.Duration) {
	rl.mu.Lock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return nil, time.Duration(math.MaxInt64)
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
		return nil, delay
	}
	return r, 0
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) >= rl.idleTTL {
			delete(rl.visitors, key)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Middleware rejects requests whose key has no token left with 429 and a Retry-After hint.
// A request the handler answers with 400 gets its token back, so malformed
// submissions always see their validation error.
func (rl *RateLimiter) Middleware(key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		r, wait := rl.reserve(key(c), now)
		if wait <= 0 {
			c.Next()
			if r != nil && c.Writer.Status() == http.StatusBadRequest {
				r.CancelAt(now)
			}
			return
		}

		seconds := int64(math.Ceil(wait.Seconds()))
		if seconds < 1 || wait == time.Duration(math.MaxInt64) {
			seconds = 1
		}
		c.Header("Retry-After", strconv.FormatInt(seconds, 10))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   "Too many requests",
			"message": "Rate limit exceeded. Please try again later.",
		})
	}
}
