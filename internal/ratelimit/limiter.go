// Package ratelimit provides the process-wide request gate shared by every
// resolution talking to the catalog.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with a name for logging/debugging.
// It is safe for concurrent use; callers block in Wait instead of failing.
type Limiter struct {
	limiter  *rate.Limiter
	name     string
	interval time.Duration
}

// NewInterval creates a limiter that lets one request through per interval.
// Burst is one, so no two requests are ever closer together than interval.
// A non-positive interval disables limiting.
func NewInterval(name string, interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limiter{
		limiter:  rate.NewLimiter(limit, 1),
		name:     name,
		interval: interval,
	}
}

// Wait blocks until the rate limiter allows a request to proceed.
// Returns an error if the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Name returns the name of this rate limiter.
func (l *Limiter) Name() string {
	return l.name
}

// Interval returns the configured minimum spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
