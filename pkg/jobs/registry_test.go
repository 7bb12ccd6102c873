package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	r := NewRegistry(cfg)
	t.Cleanup(r.Close)
	return r
}

func waitTerminal(t *testing.T, r *Registry, id string) Job {
	t.Helper()
	job, err := r.Wait(context.Background(), id, 5*time.Second)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if !job.Status.IsTerminal() {
		t.Fatalf("Job %s did not finish, status %s", id, job.Status)
	}
	return job
}

func TestRegistry_CompletesWithProgress(t *testing.T) {
	r := newTestRegistry(t, Config{})

	var observed int
	id := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		progress(50)
		current, _ := r.Get(job.ID)
		observed = current.Progress
		return "done", nil
	}, map[string]any{"operation": "review"})

	job := waitTerminal(t, r, id)
	if job.Status != StatusCompleted {
		t.Fatalf("Expected completed, got %s", job.Status)
	}
	if observed != 50 {
		t.Errorf("Expected progress 50 while running, got %d", observed)
	}
	if job.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", job.Progress)
	}
	if job.Result != "done" {
		t.Errorf("Expected result \"done\", got %v", job.Result)
	}
	if job.StartedAt == nil || job.CompletedAt == nil {
		t.Error("Expected StartedAt and CompletedAt to be set")
	}
	if job.Metadata["operation"] != "review" {
		t.Errorf("Expected metadata to be kept, got %v", job.Metadata)
	}
}

func TestRegistry_TaskSeesRunningSnapshot(t *testing.T) {
	r := newTestRegistry(t, Config{})

	statusCh := make(chan Status, 1)
	id := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		statusCh <- job.Status
		return nil, nil
	}, nil)

	waitTerminal(t, r, id)
	if s := <-statusCh; s != StatusRunning {
		t.Errorf("Expected task to see running, got %s", s)
	}
}

func TestRegistry_ProgressClamped(t *testing.T) {
	r := newTestRegistry(t, Config{})

	values := make(chan int, 2)
	release := make(chan struct{})
	id := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		progress(150)
		j, _ := r.Get(job.ID)
		values <- j.Progress
		progress(-20)
		j, _ = r.Get(job.ID)
		values <- j.Progress
		<-release
		return nil, nil
	}, nil)

	if v := <-values; v != 100 {
		t.Errorf("Expected 150 clamped to 100, got %d", v)
	}
	if v := <-values; v != 0 {
		t.Errorf("Expected -20 clamped to 0, got %d", v)
	}
	close(release)
	waitTerminal(t, r, id)
}

func TestRegistry_TaskError(t *testing.T) {
	r := newTestRegistry(t, Config{})

	id := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		return nil, errors.New("backend exited with status 2")
	}, nil)

	job := waitTerminal(t, r, id)
	if job.Status != StatusFailed {
		t.Fatalf("Expected failed, got %s", job.Status)
	}
	if job.Error != "backend exited with status 2" {
		t.Errorf("Unexpected error message: %q", job.Error)
	}
}

func TestRegistry_TaskPanic(t *testing.T) {
	r := newTestRegistry(t, Config{})

	id := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		panic("nil map write")
	}, nil)

	job := waitTerminal(t, r, id)
	if job.Status != StatusFailed {
		t.Fatalf("Expected failed after panic, got %s", job.Status)
	}
	if job.Error != "job panicked: nil map write" {
		t.Errorf("Unexpected error message: %q", job.Error)
	}
}

func TestRegistry_CancelRunning(t *testing.T) {
	r := newTestRegistry(t, Config{})

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	id := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		defer close(finished)
		close(started)
		<-release
		progress(80)
		return "late result", errors.New("late error")
	}, nil)

	<-started
	if !r.Cancel(id) {
		t.Fatal("Expected Cancel to succeed on a running job")
	}
	if r.Cancel(id) {
		t.Error("Expected second Cancel to return false")
	}

	job, _ := r.Get(id)
	if job.Status != StatusCancelled || job.CompletedAt == nil {
		t.Fatalf("Expected cancelled with CompletedAt, got %+v", job)
	}

	close(release)
	<-finished

	// The task's late outcome must not overwrite the cancellation.
	r.Wait(context.Background(), id, 0)
	job, _ = r.Get(id)
	if job.Status != StatusCancelled || job.Result != nil || job.Error != "" {
		t.Errorf("Expected cancelled job to stay untouched, got %+v", job)
	}
}

func TestRegistry_CancelPending(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(t, Config{Clock: clock.Now})

	// Insert a pending job directly so the task goroutine cannot start it.
	r.mu.Lock()
	r.jobs["p"] = &record{job: Job{ID: "p", Status: StatusPending, CreatedAt: clock.Now()}, done: make(chan struct{})}
	r.mu.Unlock()

	if !r.Cancel("p") {
		t.Fatal("Expected Cancel to succeed on a pending job")
	}
	if r.Cancel("p") {
		t.Error("Expected second Cancel to return false")
	}

	job, _ := r.Get("p")
	if job.Status != StatusCancelled {
		t.Errorf("Expected cancelled, got %s", job.Status)
	}
}

func TestRegistry_CancelTerminal(t *testing.T) {
	r := newTestRegistry(t, Config{})

	id := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		return nil, nil
	}, nil)
	waitTerminal(t, r, id)

	if r.Cancel(id) {
		t.Error("Expected Cancel on a completed job to return false")
	}
	if r.Cancel("missing") {
		t.Error("Expected Cancel on an unknown job to return false")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := newTestRegistry(t, Config{})

	if _, err := r.Get("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
	if _, err := r.Wait(context.Background(), "missing", time.Second); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound from Wait, got %v", err)
	}
}

func TestRegistry_WaitTimeout(t *testing.T) {
	r := newTestRegistry(t, Config{})

	release := make(chan struct{})
	defer close(release)
	id := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		<-release
		return nil, nil
	}, nil)

	job, err := r.Wait(context.Background(), id, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Expected nil error on timeout, got %v", err)
	}
	if job.Status.IsTerminal() {
		t.Errorf("Expected non-terminal snapshot, got %s", job.Status)
	}
}

func TestRegistry_WaitContextCancelled(t *testing.T) {
	r := newTestRegistry(t, Config{})

	release := make(chan struct{})
	defer close(release)
	id := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		<-release
		return nil, nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Wait(ctx, id, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRegistry_EvictsOldestTerminal(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(t, Config{MaxJobs: 2, Clock: clock.Now})

	noop := func(ctx context.Context, job Job, progress ProgressFunc) (any, error) { return nil, nil }

	first := r.Create(noop, nil)
	waitTerminal(t, r, first)
	clock.Advance(time.Second)

	second := r.Create(noop, nil)
	waitTerminal(t, r, second)
	clock.Advance(time.Second)

	third := r.Create(noop, nil)
	waitTerminal(t, r, third)

	summaries := r.List()
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 jobs after eviction, got %d", len(summaries))
	}
	if summaries[0].ID != third || summaries[1].ID != second {
		t.Errorf("Expected newest first [%s %s], got [%s %s]", third, second, summaries[0].ID, summaries[1].ID)
	}
	if _, err := r.Get(first); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected oldest job evicted, got %v", err)
	}
}

func TestRegistry_NeverEvictsActive(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(t, Config{MaxJobs: 1, MaxAge: time.Minute, Clock: clock.Now})

	release := make(chan struct{})
	defer close(release)
	blocking := func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		<-release
		return nil, nil
	}

	a := r.Create(blocking, nil)
	b := r.Create(blocking, nil)
	clock.Advance(time.Hour)

	if n := r.Evict(); n != 0 {
		t.Errorf("Expected no eviction of active jobs, got %d", n)
	}
	for _, id := range []string{a, b} {
		if _, err := r.Get(id); err != nil {
			t.Errorf("Expected active job %s to survive, got %v", id, err)
		}
	}
}

func TestRegistry_EvictsByAge(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(t, Config{MaxAge: time.Minute, Clock: clock.Now})

	id := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		return nil, nil
	}, nil)
	waitTerminal(t, r, id)

	clock.Advance(2 * time.Minute)
	if n := r.Evict(); n != 1 {
		t.Errorf("Expected 1 eviction, got %d", n)
	}
}

func TestRegistry_ListFiltersAndOmitsResult(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(t, Config{Clock: clock.Now})

	ok := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		return "payload", nil
	}, nil)
	waitTerminal(t, r, ok)
	clock.Advance(time.Second)

	bad := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		return nil, errors.New("boom")
	}, nil)
	waitTerminal(t, r, bad)

	failed := r.List(StatusFailed)
	if len(failed) != 1 || failed[0].ID != bad {
		t.Fatalf("Expected only the failed job, got %+v", failed)
	}

	both := r.List(StatusCompleted, StatusFailed)
	if len(both) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(both))
	}
}

func TestRegistry_Delete(t *testing.T) {
	r := newTestRegistry(t, Config{})

	release := make(chan struct{})
	running := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		<-release
		return nil, nil
	}, nil)

	if r.Delete(running) {
		t.Error("Expected Delete to refuse an active job")
	}

	close(release)
	waitTerminal(t, r, running)

	if !r.Delete(running) {
		t.Error("Expected Delete to remove a finished job")
	}
	if r.Delete(running) {
		t.Error("Expected second Delete to return false")
	}
}

func TestRegistry_Counts(t *testing.T) {
	r := newTestRegistry(t, Config{})

	id := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		return nil, errors.New("x")
	}, nil)
	waitTerminal(t, r, id)

	counts := r.Counts()
	if counts[StatusFailed] != 1 {
		t.Errorf("Expected 1 failed, got %d", counts[StatusFailed])
	}
	if _, ok := counts[StatusPending]; !ok {
		t.Error("Expected every status to be present in counts")
	}
}

func TestRegistry_ShutdownCancelsTaskContext(t *testing.T) {
	r := NewRegistry(Config{})

	started := make(chan struct{})
	id := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	job, _ := r.Get(id)
	if job.Status != StatusFailed {
		t.Errorf("Expected task stopped by shutdown to fail, got %s", job.Status)
	}

	late := r.Create(func(ctx context.Context, job Job, progress ProgressFunc) (any, error) {
		return nil, nil
	}, nil)
	if job, _ := r.Get(late); job.Status != StatusFailed {
		t.Errorf("Expected job created after shutdown to fail, got %s", job.Status)
	}
}
