package util

import (
	"context"
	"sync"
	"time"
)

// FixedWindowLimiter enforces a hard "at most quota requests, then a full
// cooldown window" budget. Once the quota is spent, the next Acquire blocks
// for the entire window duration regardless of how long the requests
// themselves took. The provider-side quota is a hard limit of unknown
// precision, so the limiter trades throughput for guaranteed non-violation
// rather than adapting to observed latency.
type FixedWindowLimiter struct {
	quota  int
	window time.Duration

	mu   sync.Mutex
	used int

	// Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFixedWindowLimiter creates a limiter that allows quota acquisitions
// followed by a mandatory cooldown of window.
func NewFixedWindowLimiter(quota int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		quota:  quota,
		window: window,
		sleep:  sleepCtx,
	}
}

// Acquire consumes one request token. When the quota is exhausted it blocks
// for the full cooldown window before opening the next one. It returns early
// with the context's error if ctx is cancelled during the cooldown.
func (l *FixedWindowLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.used >= l.quota {
		if err := l.sleep(ctx, l.window); err != nil {
			return err
		}
		l.used = 0
	}
	l.used++
	return nil
}

// Cooldown forces the post-batch cooldown immediately, whether or not the
// quota was fully spent, and opens a fresh window. The collector calls it at
// every batch boundary so that batch size and quota need not line up exactly.
func (l *FixedWindowLimiter) Cooldown(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.sleep(ctx, l.window); err != nil {
		return err
	}
	l.used = 0
	return nil
}

// Remaining returns the number of acquisitions left in the current window.
func (l *FixedWindowLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quota - l.used
}

// SetSleepFunc replaces the blocking sleep, letting tests run the limiter
// against a fake clock.
func (l *FixedWindowLimiter) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sleep = fn
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
