package pacing

import (
	"context"
	"testing"
	"time"
)

// fakeClock drives a Gate without real sleeping. Time only advances when the
// gate sleeps, mimicking a caller that does no work between calls.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

func newFakeGate(interval time.Duration) (*Gate, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	return NewGateWithClock(interval, clk.now, clk.sleep), clk
}

func TestGateFirstWaitSleepsForFullInterval(t *testing.T) {
	// The zero last-release time is far in the past, so the first Wait
	// should pass without sleeping.
	g, clk := newFakeGate(100 * time.Millisecond)
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(clk.sleeps) != 0 {
		t.Fatalf("first Wait slept %v, want no sleep", clk.sleeps)
	}
}

func TestGateEnforcesMinimumInterval(t *testing.T) {
	g, clk := newFakeGate(100 * time.Millisecond)
	ctx := context.Background()

	var releases []time.Time
	for i := 0; i < 5; i++ {
		if err := g.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
		releases = append(releases, clk.t)
	}

	for i := 1; i < len(releases); i++ {
		gap := releases[i].Sub(releases[i-1])
		if gap < 100*time.Millisecond {
			t.Errorf("gap between release %d and %d is %v, want >= 100ms", i-1, i, gap)
		}
	}
}

func TestGateAccountsForCallerWork(t *testing.T) {
	g, clk := newFakeGate(100 * time.Millisecond)
	ctx := context.Background()

	if err := g.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	// Caller does 40ms of work; the next Wait should only sleep the
	// remaining 60ms.
	clk.t = clk.t.Add(40 * time.Millisecond)
	if err := g.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	last := clk.sleeps[len(clk.sleeps)-1]
	if last != 60*time.Millisecond {
		t.Errorf("second Wait slept %v, want 60ms", last)
	}

	// Caller takes longer than the interval; no sleep at all.
	before := len(clk.sleeps)
	clk.t = clk.t.Add(250 * time.Millisecond)
	if err := g.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(clk.sleeps) != before {
		t.Errorf("third Wait slept %v, want no sleep", clk.sleeps[before:])
	}
}

func TestGateZeroIntervalNeverSleeps(t *testing.T) {
	g, clk := newFakeGate(0)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := g.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if len(clk.sleeps) != 0 {
		t.Errorf("zero-interval gate slept %v", clk.sleeps)
	}
}

func TestGateCancelledContext(t *testing.T) {
	g := NewGate(time.Hour)
	ctx := context.Background()
	if err := g.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := g.Wait(cancelled); err != context.Canceled {
		t.Errorf("Wait on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestGateRealClockFloor(t *testing.T) {
	g := NewGate(20 * time.Millisecond)
	ctx := context.Background()

	var stamps []time.Time
	for i := 0; i < 3; i++ {
		if err := g.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		stamps = append(stamps, time.Now())
	}
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < 20*time.Millisecond {
			t.Errorf("real-clock gap %v < 20ms", gap)
		}
	}
}
