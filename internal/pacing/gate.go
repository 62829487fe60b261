// Package pacing provides the minimum-interval throttle that spaces calls
// against Discord's rate limits. A Gate is per-purpose: one paces logins
// across accounts, another paces items within a batch job. Sharing one gate
// across unrelated call sites would couple their rate budgets.
package pacing

import (
	"context"
	"sync"
	"time"
)

// Gate blocks callers so that consecutive releases are separated by at least
// a configured interval of wall-clock time.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGate creates a Gate with the given minimum interval. An interval of zero
// or less makes Wait a no-op.
func NewGate(interval time.Duration) *Gate {
	return &Gate{
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// NewGateWithClock creates a Gate with an injected clock, for tests.
func NewGateWithClock(interval time.Duration, now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Gate {
	return &Gate{interval: interval, now: now, sleep: sleep}
}

// Wait blocks until at least the gate's interval has elapsed since the last
// release. The release timestamp is taken at the moment Wait returns, not the
// moment it was called, so back-to-back calls are spaced by the full interval
// regardless of how long the caller's own work took. Returns ctx.Err() if the
// context is cancelled while waiting; the gate is not released in that case.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.interval <= 0 {
		g.last = g.now()
		return nil
	}

	elapsed := g.now().Sub(g.last)
	if remaining := g.interval - elapsed; remaining > 0 {
		if err := g.sleep(ctx, remaining); err != nil {
			return err
		}
	}
	g.last = g.now()
	return nil
}

// Interval returns the gate's configured minimum interval.
func (g *Gate) Interval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interval
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
