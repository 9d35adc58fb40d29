package middleware

import (
	"time"

	"golang.org/x/time/rate"
)

const (
	burstLimit = 5
	refillRate = 500 * time.Millisecond
)

// RateLimiter is a per-connection token bucket: burst tokens, one token
// added every refill interval.
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRatelimiter(burst int, refill time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = burstLimit
	}
	if refill <= 0 {
		refill = refillRate
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(refill), burst)}
}

func (l *RateLimiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}
