package submit

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing submissions. A nil limiter never waits.
type RateLimiter struct{ l *rate.Limiter }

// NewRateLimiter returns nil when rpm is not positive.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	if rpm <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		l: rate.NewLimiter(rate.Limit(rpm)/60, burst),
	}
}

// Wait blocks until a submission may proceed.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.l.Wait(ctx)
}
