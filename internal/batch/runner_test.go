package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/roundhouse/internal/outcome"
	"github.com/zulandar/roundhouse/internal/pacing"
)

type item struct{ id string }

func makeItems(n int) []item {
	items := make([]item, n)
	for i := range items {
		items[i] = item{id: fmt.Sprintf("item%d", i+1)}
	}
	return items
}

func idOf(it item) string { return it.id }

func TestRunEmptyItems(t *testing.T) {
	var r Runner
	rep, err := Run(context.Background(), &r, nil, func(context.Context, item) error {
		t.Fatal("action invoked for empty items")
		return nil
	}, Options[item]{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep != (Report{}) {
		t.Errorf("report = %+v, want zero", rep)
	}
}

func TestRunCountsAndWhitelist(t *testing.T) {
	// 10 items, item3 and item7 whitelisted, item5 fails:
	// processed=10 skipped=2 errors=1 succeeded=7.
	var r Runner
	whitelist := map[string]struct{}{"item3": {}, "item7": {}}

	var acted []string
	rep, err := Run(context.Background(), &r, makeItems(10), func(_ context.Context, it item) error {
		acted = append(acted, it.id)
		if it.id == "item5" {
			return errors.New("boom")
		}
		return nil
	}, Options[item]{Whitelist: whitelist, IDOf: idOf})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := Report{Processed: 10, Succeeded: 7, Skipped: 2, Errors: 1}
	if rep != want {
		t.Errorf("report = %+v, want %+v", rep, want)
	}
	for _, id := range acted {
		if _, ok := whitelist[id]; ok {
			t.Errorf("action invoked on whitelisted %s", id)
		}
	}
}

func TestRunWhitelistCoversEverything(t *testing.T) {
	var r Runner
	items := makeItems(4)
	whitelist := make(map[string]struct{})
	for _, it := range items {
		whitelist[it.id] = struct{}{}
	}

	rep, err := Run(context.Background(), &r, items, func(_ context.Context, it item) error {
		t.Errorf("action invoked on %s", it.id)
		return nil
	}, Options[item]{Whitelist: whitelist, IDOf: idOf})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Skipped != 4 || rep.Errors != 0 || rep.Succeeded != 0 {
		t.Errorf("report = %+v, want all skipped", rep)
	}
}

func TestRunRejectsSecondJob(t *testing.T) {
	var r Runner
	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	var firstRep Report
	go func() {
		defer wg.Done()
		firstRep, _ = Run(context.Background(), &r, makeItems(3), func(_ context.Context, it item) error {
			if it.id == "item1" {
				close(started)
				<-release
			}
			return nil
		}, Options[item]{})
	}()

	<-started
	if !r.IsRunning() {
		t.Error("IsRunning() = false during run")
	}

	rep, err := Run(context.Background(), &r, makeItems(5), func(context.Context, item) error {
		t.Error("second job's action invoked")
		return nil
	}, Options[item]{})
	if !errors.Is(err, outcome.ErrAlreadyRunning) {
		t.Errorf("second Run err = %v, want ErrAlreadyRunning", err)
	}
	if rep != (Report{}) {
		t.Errorf("second Run report = %+v, want zero", rep)
	}

	close(release)
	wg.Wait()

	// The rejected submission must not have disturbed the first job.
	want := Report{Processed: 3, Succeeded: 3}
	if firstRep != want {
		t.Errorf("first job report = %+v, want %+v", firstRep, want)
	}
	if r.IsRunning() {
		t.Error("IsRunning() = true after run")
	}
}

func TestRunStopPreservesPartialProgress(t *testing.T) {
	var r Runner
	rep, err := Run(context.Background(), &r, makeItems(10), func(_ context.Context, it item) error {
		if it.id == "item4" {
			// The stop flag is observed before the *next* item, so
			// this one still completes.
			r.Stop()
		}
		return nil
	}, Options[item]{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Stopped {
		t.Error("Stopped = false after Stop()")
	}
	if rep.Processed != 4 || rep.Succeeded != 4 {
		t.Errorf("report = %+v, want processed=4 succeeded=4", rep)
	}
}

func TestRunContextCancellation(t *testing.T) {
	var r Runner
	ctx, cancel := context.WithCancel(context.Background())
	rep, err := Run(ctx, &r, makeItems(10), func(_ context.Context, it item) error {
		if it.id == "item2" {
			cancel()
		}
		return nil
	}, Options[item]{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Stopped || rep.Processed != 2 {
		t.Errorf("report = %+v, want stopped after 2 items", rep)
	}
}

func TestRunPacesWithGate(t *testing.T) {
	var r Runner
	gate := pacing.NewGate(15 * time.Millisecond)

	start := time.Now()
	rep, err := Run(context.Background(), &r, makeItems(3), func(context.Context, item) error {
		return nil
	}, Options[item]{Gate: gate})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Succeeded != 3 {
		t.Fatalf("report = %+v", rep)
	}
	// Gate is awaited after each of the 3 items; the 2nd and 3rd waits
	// each enforce the floor.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("run took %v, want >= 30ms with pacing", elapsed)
	}
}

func TestStopWithoutRunIsNoop(t *testing.T) {
	var r Runner
	r.Stop()

	rep, err := Run(context.Background(), &r, makeItems(2), func(context.Context, item) error {
		return nil
	}, Options[item]{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Stopped || rep.Succeeded != 2 {
		t.Errorf("report = %+v, stale stop flag leaked into run", rep)
	}
}
