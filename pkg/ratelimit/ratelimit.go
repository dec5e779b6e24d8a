// Package ratelimit gates outbound provider calls to a per-integration
// calls-per-minute budget.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a single-slot token gate: every Wait call is serialized and
// granted at least the configured interval after the previous grant. One
// limiter is scoped to one execution's channel usage; limiters are not
// shared across concurrent executions.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// New builds a limiter from an integration's calls-per-minute rate. A
// rate of zero or less is treated as one call per minute, never as
// unlimited.
func New(ratePerMinute int) *Limiter {
	if ratePerMinute < 1 {
		ratePerMinute = 1
	}

	interval := time.Minute / time.Duration(ratePerMinute)

	return &Limiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Wait blocks until the caller may perform one send, or until the
// context is cancelled. The critical section only covers slot
// bookkeeping, never the network call itself.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Interval returns the enforced minimum spacing between grants.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
