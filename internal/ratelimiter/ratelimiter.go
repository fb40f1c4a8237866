// Package ratelimiter admits new connections through a token bucket.
package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether a freshly accepted connection may be served.
//
// A nil *Limiter admits everything, so callers can keep one unconditionally.
// All methods are safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter refilling perSecond tokens per second up to burst.
// A zero perSecond disables limiting and New returns nil. A zero burst is
// raised to perSecond so that at least one connection can ever be admitted.
func New(perSecond, burst uint) *Limiter {
	if perSecond == 0 {
		return nil
	}
	if burst == 0 {
		burst = perSecond
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst)),
	}
}

// Allow consumes a token if one is available.
func (l *Limiter) Allow() bool {
	return l.AllowAt(time.Now())
}

// AllowAt is Allow evaluated at now.
func (l *Limiter) AllowAt(now time.Time) bool {
	if l == nil {
		return true
	}
	return l.limiter.AllowN(now, 1)
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// SetLimit changes the refill rate. Zero removes the limit.
func (l *Limiter) SetLimit(perSecond uint) {
	if l == nil {
		return
	}
	if perSecond == 0 {
		l.limiter.SetLimit(rate.Inf)
		return
	}
	l.limiter.SetLimit(rate.Limit(perSecond))
}

// Tokens returns the tokens currently available, for stats logging.
func (l *Limiter) Tokens() float64 {
	if l == nil {
		return 0
	}
	return l.limiter.Tokens()
}
