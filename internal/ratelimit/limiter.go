package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"yaad/internal/config"
)

// Limiter hands out request budget per external source name.
type Limiter struct {
	cfg config.RateLimit

	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	lastCall map[string]time.Time
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// New builds a limiter from the configured per-source budgets.
func New(cfg config.RateLimit) *Limiter {
	return &Limiter{
		cfg:      cfg,
		buckets:  make(map[string]*rate.Limiter),
		lastCall: make(map[string]time.Time),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait blocks until the source's budget admits one more call, honoring both
// the token bucket and the minimum inter-call interval floor. Returns early
// with the context's error on cancellation.
func (l *Limiter) Wait(ctx context.Context, source string) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	bucket, ok := l.buckets[source]
	if !ok {
		budget := l.cfg.Budget(source)
		bucket = rate.NewLimiter(rate.Limit(budget.PerSecond), budget.Burst)
		l.buckets[source] = bucket
	}
	floor := time.Duration(l.cfg.MinIntervalMS) * time.Millisecond
	var wait time.Duration
	if floor > 0 {
		if last, seen := l.lastCall[source]; seen {
			if elapsed := l.now().Sub(last); elapsed < floor {
				wait = floor - elapsed
			}
		}
	}
	l.mu.Unlock()

	if wait > 0 {
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	if err := bucket.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	l.lastCall[source] = l.now()
	l.mu.Unlock()
	return nil
}

// Allow reports whether a call would be admitted right now without blocking.
// Used by opportunistic enrichment that prefers skipping over waiting.
func (l *Limiter) Allow(source string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	bucket, ok := l.buckets[source]
	if !ok {
		budget := l.cfg.Budget(source)
		bucket = rate.NewLimiter(rate.Limit(budget.PerSecond), budget.Burst)
		l.buckets[source] = bucket
	}
	l.mu.Unlock()
	return bucket.Allow()
}
