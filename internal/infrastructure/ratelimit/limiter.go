package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum spacing between granted calls: a bucket of one
// token refilled every 60s/requestsPerMinute. It tracks no rolling window and
// no daily quota.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// New returns a limiter for requestsPerMinute. Non-positive values disable spacing.
func New(requestsPerMinute int) *Limiter {
	if requestsPerMinute <= 0 {
		return &Limiter{}
	}
	interval := time.Minute / time.Duration(requestsPerMinute)
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the next call is allowed. The first call never waits.
// A cancelled wait leaves LastRequestAt untouched.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	l.mu.Lock()
	l.last = time.Now()
	l.mu.Unlock()
	return nil
}

// LastRequestAt is the zero time until the first granted call.
func (l *Limiter) LastRequestAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}
