package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJobLifecycleStates(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusRunning} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestProgress(t *testing.T) {
	j := NewJob("load", "student", time.Now())
	if got := j.Progress(); got != -1 {
		t.Errorf("progress with unknown total = %v, want -1", got)
	}

	j.RecordsTotal = 200
	j.RecordsProcessed = 50
	if got := j.Progress(); got != 25 {
		t.Errorf("progress = %v, want 25", got)
	}

	// Completed jobs always report 100, even when the count pre-pass was
	// disabled and total stayed unknown until the end.
	j.Status = StatusCompleted
	if got := j.Progress(); got != 100 {
		t.Errorf("completed progress = %v, want 100", got)
	}
}

// storeUnderTest runs the same contract checks against every Store
// implementation.
func storeUnderTest(t *testing.T, store Store) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	a := NewJob("load-a", "student", now)
	b := NewJob("load-b", "performance", now.Add(time.Second))
	for _, j := range []*Job{a, b} {
		if err := store.Create(ctx, j); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "load-a" || got.Status != StatusPending {
		t.Errorf("get = %+v", got)
	}

	// Updates round-trip all progress fields.
	start := now.Add(2 * time.Second)
	a.Status = StatusRunning
	a.StartTime = &start
	a.RecordsTotal = 10
	a.RecordsProcessed = 4
	a.RecordsSuccessful = 3
	a.RecordsFailed = 1
	a.ErrorSamples = []string{"line 2: gpa: range: 9.9 above max"}
	a.UpdatedAt = start
	if err := store.Update(ctx, a); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Status != StatusRunning || got.RecordsProcessed != 4 {
		t.Errorf("updated job = %+v", got)
	}
	if got.StartTime == nil || !got.StartTime.Equal(start) {
		t.Errorf("start_time = %v, want %v", got.StartTime, start)
	}
	if len(got.ErrorSamples) != 1 {
		t.Errorf("error_samples = %v", got.ErrorSamples)
	}

	// List is newest-first; filters narrow by type and status.
	all, err := store.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("list = %d jobs, want 2", len(all))
	}
	if all[0].ID != b.ID {
		t.Errorf("list[0] = %s, want newest job %s", all[0].ID, b.ID)
	}

	byType, err := store.List(ctx, Filter{Type: "performance"})
	if err != nil {
		t.Fatalf("list by type: %v", err)
	}
	if len(byType) != 1 || byType[0].ID != b.ID {
		t.Errorf("list by type = %+v", byType)
	}

	running, err := store.List(ctx, Filter{Status: StatusRunning})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(running) != 1 || running[0].ID != a.ID {
		t.Errorf("list by status = %+v", running)
	}

	limited, err := store.List(ctx, Filter{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("list limit=1 returned %d", len(limited))
	}

	// Unknown ids.
	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get unknown = %v, want ErrNotFound", err)
	}
	missing := NewJob("ghost", "student", now)
	if err := store.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("update unknown = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemory()
	defer store.Close()
	storeUnderTest(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLite("file:jobs_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	defer store.Close()
	storeUnderTest(t, store)
}

// The memory store must hand out copies: callers mutating a returned job
// must not affect stored state.
func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	j := NewJob("load", "student", time.Now())
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := store.Get(ctx, j.ID)
	got.Status = StatusFailed
	got.ErrorSamples = append(got.ErrorSamples, "mutated")

	again, _ := store.Get(ctx, j.ID)
	if again.Status != StatusPending {
		t.Errorf("stored status mutated to %s", again.Status)
	}
	if len(again.ErrorSamples) != 0 {
		t.Errorf("stored samples mutated: %v", again.ErrorSamples)
	}
}
