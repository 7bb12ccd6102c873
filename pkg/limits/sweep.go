package limits

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/sentinel/pkg/limits/storage"
)

// Sweeper runs Governor.Sweep on a cron schedule.
//
// Job eviction and reservation expiry happen lazily without it. The sweeper
// bounds how long stale state lingers when no calls arrive.
type Sweeper struct {
	governor *Governor
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewSweeper creates a sweeper for g. schedule is a standard five-field
// cron expression or a descriptor such as "@every 5m".
func NewSweeper(g *Governor, schedule string) *Sweeper {
	return &Sweeper{
		governor: g,
		schedule: schedule,
		cron:     cron.New(),
		logger:   g.logger.With("component", "sweeper"),
	}
}

// ValidateSchedule reports whether schedule is a valid cron expression.
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// Start schedules sweeps until ctx is cancelled or Stop is called.
// An empty schedule does nothing.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, relying on lazy cleanup")
		return nil
	}
	if s.running {
		return nil
	}

	if err := ValidateSchedule(s.schedule); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("sweeper started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce performs one sweep. Stores implementing storage.Cleaner also
// have their expired counters deleted.
func (s *Sweeper) RunOnce(ctx context.Context) {
	evicted, expired := s.governor.Sweep(ctx)

	var purged int
	if c, ok := s.governor.store.(storage.Cleaner); ok {
		n, err := c.Cleanup(ctx)
		if err != nil {
			s.logger.Warn("store cleanup failed", "error", err)
		}
		purged = n
	}

	if evicted > 0 || expired > 0 || purged > 0 {
		s.logger.Info("sweep completed",
			"evicted_jobs", evicted,
			"expired_reservations", expired,
			"purged_counters", purged,
		)
		return
	}
	s.logger.Debug("sweep completed, nothing to clean")
}

// Stop stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("sweeper stopped")
}

// NextRun returns the next scheduled sweep, or nil if not running.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
