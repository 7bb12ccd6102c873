package jobs

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"
)

// ErrJobNotFound is returned when a job id is unknown or was evicted.
var ErrJobNotFound = errors.New("job not found")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

// IsTerminal reports whether s is completed, failed or cancelled.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ProgressFunc reports task progress in percent. Values are clamped to
// 0..100 and ignored once the job is no longer running.
type ProgressFunc func(percent int)

// Task is the body of a job. ctx is cancelled only when the registry shuts
// down; Cancel does not interrupt a running task.
type Task func(ctx context.Context, job Job, progress ProgressFunc) (any, error)

// Job is a snapshot of an asynchronous operation.
type Job struct {
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Progress    int            `json:"progress"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Summary is a Job without its result payload.
type Summary struct {
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Progress    int            `json:"progress"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// clone returns a copy that shares no mutable state with j.
func (j Job) clone() Job {
	c := j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	c.Metadata = maps.Clone(j.Metadata)
	return c
}

func (j Job) summary() Summary {
	c := j.clone()
	return Summary{
		ID:          c.ID,
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
		Progress:    c.Progress,
		Error:       c.Error,
		Metadata:    c.Metadata,
	}
}

// Config configures a Registry.
type Config struct {
	// MaxJobs is the number of jobs above which the oldest terminal jobs
	// are evicted. Pending and running jobs are never evicted.
	// Default: 100
	MaxJobs int

	// MaxAge is how long a terminal job is kept after it was created.
	// Default: 1 hour
	MaxAge time.Duration

	// Logger receives job lifecycle logs.
	// Default: slog.Default()
	Logger *slog.Logger

	// Clock overrides time.Now. Used by tests.
	Clock func() time.Time
}
