package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry tracks asynchronous jobs in memory.
//
// Create starts a task in its own goroutine and returns at once; callers
// poll with Get or block with Wait. The registry owns every job record and
// hands out copies.
type Registry struct {
	mu     sync.Mutex
	jobs   map[string]*record
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// record is a job and the channel closed when it reaches a terminal state.
type record struct {
	job  Job
	done chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 100
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		jobs:   make(map[string]*record),
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "jobs"),
		now:    cfg.Clock,
	}
}

// Create registers a pending job, starts task in a new goroutine and
// returns the job id.
func (r *Registry) Create(task Task, metadata map[string]any) string {
	r.mu.Lock()
	r.evictLocked()

	id := uuid.New().String()
	rec := &record{
		job: Job{
			ID:        id,
			Status:    StatusPending,
			CreatedAt: r.now(),
			Metadata:  maps.Clone(metadata),
		},
		done: make(chan struct{}),
	}
	r.jobs[id] = rec

	if r.closed {
		r.finishLocked(rec, StatusFailed, nil, "job registry is closed")
		r.mu.Unlock()
		return id
	}

	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(rec, task)

	return id
}

func (r *Registry) run(rec *record, task Task) {
	defer r.wg.Done()

	r.mu.Lock()
	if rec.job.Status != StatusPending {
		r.mu.Unlock()
		return
	}
	started := r.now()
	rec.job.Status = StatusRunning
	rec.job.StartedAt = &started
	snapshot := rec.job.clone()
	r.mu.Unlock()

	r.logger.Debug("job started", "job_id", snapshot.ID)

	result, err := r.invoke(task, snapshot, func(percent int) {
		r.setProgress(rec, percent)
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.job.Status != StatusRunning {
		// Cancelled while running; the outcome is discarded.
		r.logger.Debug("discarding result of cancelled job", "job_id", snapshot.ID)
		return
	}

	if err != nil {
		r.finishLocked(rec, StatusFailed, nil, err.Error())
		r.logger.Warn("job failed", "job_id", snapshot.ID, "error", err)
		return
	}

	rec.job.Progress = 100
	r.finishLocked(rec, StatusCompleted, result, "")
	r.logger.Debug("job completed", "job_id", snapshot.ID)
}

// invoke runs task and converts a panic into an error.
func (r *Registry) invoke(task Task, job Job, progress ProgressFunc) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("job panicked",
				"job_id", job.ID,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return task(r.ctx, job, progress)
}

func (r *Registry) setProgress(rec *record, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.job.Status != StatusRunning {
		return
	}
	rec.job.Progress = min(max(percent, 0), 100)
}

// finishLocked moves rec to a terminal status and wakes waiters.
// Caller must hold the lock.
func (r *Registry) finishLocked(rec *record, status Status, result any, errMsg string) {
	completed := r.now()
	rec.job.Status = status
	rec.job.CompletedAt = &completed
	rec.job.Result = result
	rec.job.Error = errMsg
	close(rec.done)
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return rec.job.clone(), nil
}

// Wait blocks until the job is terminal, timeout elapses or ctx is done.
// On timeout it returns the current, non-terminal snapshot and a nil error.
// A timeout of zero or less waits for ctx only.
func (r *Registry) Wait(ctx context.Context, id string, timeout time.Duration) (Job, error) {
	r.mu.Lock()
	rec, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var err error
	select {
	case <-rec.done:
	case <-expired:
	case <-ctx.Done():
		err = ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return rec.job.clone(), err
}

// Cancel marks a pending or running job as cancelled. It returns false if
// the job is unknown or already terminal. A running task is not
// interrupted; its eventual result is discarded.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok || rec.job.Status.IsTerminal() {
		return false
	}

	r.finishLocked(rec, StatusCancelled, nil, "")
	r.logger.Info("job cancelled", "job_id", id)
	return true
}

// List returns summaries of jobs with any of the given statuses (all jobs
// when none are given), newest first. It evicts stale jobs first.
func (r *Registry) List(statuses ...Status) []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictLocked()

	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	out := make([]Summary, 0, len(r.jobs))
	for _, rec := range r.jobs {
		if len(want) > 0 && !want[rec.job.Status] {
			continue
		}
		out = append(out, rec.job.summary())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Delete removes a terminal job. It returns false if the job is unknown or
// still pending or running.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok || !rec.job.Status.IsTerminal() {
		return false
	}
	delete(r.jobs, id)
	return true
}

// Counts returns the number of jobs in each status.
func (r *Registry) Counts() map[Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}
	for _, rec := range r.jobs {
		counts[rec.job.Status]++
	}
	return counts
}

// Evict applies the age and size limits now and returns how many jobs were
// removed. Create and List do this lazily; Evict is for periodic sweeps.
func (r *Registry) Evict() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictLocked()
}

// evictLocked drops terminal jobs older than MaxAge, then the oldest
// terminal jobs until at most MaxJobs remain.
// Caller must hold the lock.
func (r *Registry) evictLocked() int {
	now := r.now()
	evicted := 0

	var terminal []*record
	for id, rec := range r.jobs {
		if !rec.job.Status.IsTerminal() {
			continue
		}
		if now.Sub(rec.job.CreatedAt) > r.cfg.MaxAge {
			delete(r.jobs, id)
			evicted++
			continue
		}
		terminal = append(terminal, rec)
	}

	if len(r.jobs) > r.cfg.MaxJobs {
		sort.Slice(terminal, func(i, j int) bool {
			return terminal[i].job.CreatedAt.Before(terminal[j].job.CreatedAt)
		})
		for _, rec := range terminal {
			if len(r.jobs) <= r.cfg.MaxJobs {
				break
			}
			delete(r.jobs, rec.job.ID)
			evicted++
		}
	}

	if evicted > 0 {
		r.logger.Debug("evicted jobs", "count", evicted, "remaining", len(r.jobs))
	}
	return evicted
}

// Close cancels the context handed to running tasks. Jobs created after
// Close fail immediately.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
}

// Shutdown closes the registry and waits for running tasks to return or
// ctx to end.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}
