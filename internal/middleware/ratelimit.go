// Package middleware provides HTTP middleware for the branch server.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// Sweep cadence for idle per-IP buckets. Dashboard traffic arrives in
	// bursts around a scan and then goes quiet, so anything idle past
	// evictAfter is a dead session.
	sweepEvery = 5 * time.Minute
	evictAfter = 10 * time.Minute

	// maxTrackedIPs caps the bucket table so an address-spraying client
	// cannot grow it without bound.
	maxTrackedIPs = 100_000
)

// RateLimiter is a token-bucket limiter keyed by client IP.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket
	rate    float64 // tokens added per second
	burst   float64
}

// ipBucket tracks one client's remaining tokens. Refill happens lazily on
// the client's next request, not on a timer.
type ipBucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter allowing ratePerSec sustained requests
// with the given burst headroom. The idle-bucket sweeper goroutine stops when
// ctx is cancelled.
func NewRateLimiter(ctx context.Context, ratePerSec, burst int) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*ipBucket),
		rate:    float64(ratePerSec),
		burst:   float64(burst),
	}
	go rl.sweep(ctx)

	return rl
}

func (rl *RateLimiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for ip, b := range rl.buckets {
				if now.Sub(b.lastSeen) > evictAfter {
					delete(rl.buckets, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// take refills b for the time elapsed since its last request, then spends one
// token if a whole one is available. Caller holds rl.mu.
func (rl *RateLimiter) take(b *ipBucket, now time.Time) bool {
	b.tokens += now.Sub(b.lastSeen).Seconds() * rl.rate
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}

	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}

	b.tokens--

	return true
}

// Handler returns gin middleware enforcing the per-IP limit.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// ClientIP ignores forwarding headers here: the router calls
		// SetTrustedProxies(nil).
		ip := c.ClientIP()
		now := time.Now()

		rl.mu.Lock()
		b, ok := rl.buckets[ip]
		if !ok {
			if len(rl.buckets) >= maxTrackedIPs {
				rl.mu.Unlock()
				respondError(c, http.StatusTooManyRequests, "rate_limited", "too many clients")

				return
			}

			b = &ipBucket{tokens: rl.burst, lastSeen: now}
			rl.buckets[ip] = b
		}

		allowed := rl.take(b, now)
		rl.mu.Unlock()

		if !allowed {
			respondError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")

			return
		}

		c.Next()
	}
}
