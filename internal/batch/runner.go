// Package batch implements the rate-limited batch job engine: walk a
// collection, apply an action per item, respect a cancel flag and a skip-set,
// pace with a gate, and account for partial failures. The message purge,
// friend removal, and guild departure jobs all run through it.
package batch

import (
	"context"
	"sync"

	"github.com/zulandar/roundhouse/internal/outcome"
	"github.com/zulandar/roundhouse/internal/pacing"
)

// Report is the pure-data result of one batch run. It holds no live
// references, so a caller can render it after the fact.
type Report struct {
	Processed int  // items handled, including skipped and failed
	Succeeded int  // items where the action completed
	Skipped   int  // items excluded by the whitelist
	Errors    int  // items where the action failed
	Stopped   bool // true if the run was cancelled mid-iteration
}

// Options configures one batch run.
type Options[T any] struct {
	// Whitelist is a read-only snapshot of item ids to skip. The action is
	// never invoked for a whitelisted item.
	Whitelist map[string]struct{}
	// Gate paces the run: awaited after every non-skipped item. Nil means
	// no pacing.
	Gate *pacing.Gate
	// IDOf extracts the id compared against the whitelist. Required when
	// Whitelist is non-empty.
	IDOf func(T) string
}

// Runner enforces the one-job-per-owner rule. Each session owns exactly one
// Runner; a second submission while a job is iterating is rejected, not
// queued.
type Runner struct {
	mu      sync.Mutex
	running bool
	stop    bool
}

// IsRunning reports whether a job is currently iterating.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Stop requests cooperative cancellation. It takes effect before the next
// item, not the one in flight.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.stop = true
	}
}

// begin claims the runner. Returns false if a job is already running.
func (r *Runner) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	r.stop = false
	return true
}

// end releases the runner.
func (r *Runner) end() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.stop = false
}

// stopped reports whether cancellation has been requested.
func (r *Runner) stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop
}

// Run iterates items in order, applying action to each one that is not
// whitelisted. A failing item is counted and iteration continues; the run is
// not transactional, so counts accumulated before a Stop are preserved. An
// empty items slice yields an immediately-successful zero report.
//
// Returns outcome.ErrAlreadyRunning (with a zero report) if the runner is
// already mid-job.
func Run[T any](ctx context.Context, r *Runner, items []T, action func(context.Context, T) error, opts Options[T]) (Report, error) {
	if !r.begin() {
		return Report{}, outcome.ErrAlreadyRunning
	}
	defer r.end()

	var rep Report
	for _, item := range items {
		if r.stopped() || ctx.Err() != nil {
			rep.Stopped = true
			break
		}

		if len(opts.Whitelist) > 0 && opts.IDOf != nil {
			if _, ok := opts.Whitelist[opts.IDOf(item)]; ok {
				rep.Processed++
				rep.Skipped++
				continue
			}
		}

		rep.Processed++
		if err := action(ctx, item); err != nil {
			rep.Errors++
		} else {
			rep.Succeeded++
		}

		if opts.Gate != nil {
			if err := opts.Gate.Wait(ctx); err != nil {
				rep.Stopped = true
				break
			}
		}
	}
	return rep, nil
}
