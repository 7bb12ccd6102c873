package limits

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercator-hq/sentinel/pkg/jobs"
	"mercator-hq/sentinel/pkg/limits/budget"
	"mercator-hq/sentinel/pkg/limits/storage"
)

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{"*/5 * * * *", false},
		{"@every 10m", false},
		{"@hourly", false},
		{"not a schedule", true},
		{"* * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			err := ValidateSchedule(tt.schedule)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSchedule(%q) error = %v, wantErr %v", tt.schedule, err, tt.wantErr)
			}
		})
	}
}

func TestSweeper_EmptyScheduleDisabled(t *testing.T) {
	g := newTestGovernor(t, testConfig())
	s := NewSweeper(g, "")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if next := s.NextRun(); next != nil {
		t.Errorf("Expected no scheduled run, got %v", next)
	}
	s.Stop()
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	g := newTestGovernor(t, testConfig())
	s := NewSweeper(g, "every now and then")

	if err := s.Start(context.Background()); err == nil {
		t.Error("Expected error for invalid schedule")
	}
}

func TestSweeper_StartStop(t *testing.T) {
	g := newTestGovernor(t, testConfig())
	s := NewSweeper(g, "@every 1h")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	next := s.NextRun()
	if next == nil {
		t.Fatal("Expected a scheduled run")
	}
	if until := time.Until(*next); until <= 0 || until > time.Hour+time.Second {
		t.Errorf("Unexpected next run in %v", until)
	}

	s.Stop()
	if s.NextRun() != nil {
		t.Error("Expected no scheduled run after Stop")
	}
}

func TestSweeper_RunOnce(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.Budget.ReservationTTL = 10 * time.Minute
	cfg.Jobs = jobs.Config{MaxAge: time.Hour}
	g := newTestGovernor(t, cfg, WithClock(clock.Now))
	ctx := context.Background()

	res, err := g.Budget().Reserve(ctx, 700)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	id, _ := g.Submit(ctx, Call{Operation: "gen"}, succeed(1, nil))
	g.Jobs().Wait(ctx, id, 5*time.Second)

	clock.Advance(2 * time.Hour)
	NewSweeper(g, "@every 1m").RunOnce(ctx)

	if _, err := g.Jobs().Get(id); err == nil {
		t.Error("Expected old job to be evicted")
	}

	status, _ := g.Budget().Status(ctx)
	if status.Outstanding != 0 {
		t.Errorf("Expected stale reservation to expire, got %d outstanding", status.Outstanding)
	}

	// The expired reservation can no longer be committed.
	if err := g.Budget().Commit(ctx, "late", 10, 0, res); !errors.Is(err, budget.ErrReservationFinalized) {
		t.Errorf("Expected ErrReservationFinalized, got %v", err)
	}
}

type cleaningStore struct {
	*storage.MemoryStore
	calls int
}

func (s *cleaningStore) Cleanup(ctx context.Context) (int, error) {
	s.calls++
	return 2, nil
}

func TestSweeper_RunOnceCleansStore(t *testing.T) {
	store := &cleaningStore{MemoryStore: storage.NewMemoryStore()}
	t.Cleanup(func() { store.Close() })

	g := newTestGovernor(t, testConfig(), WithStore(store))
	NewSweeper(g, "@every 1h").RunOnce(context.Background())

	if store.calls != 1 {
		t.Errorf("Expected store cleanup once, got %d", store.calls)
	}
}

func TestSweeper_RunOncePurgesMemoryStore(t *testing.T) {
	clock := newFakeClock()
	store := storage.NewMemoryStoreWithConfig(storage.MemoryStoreConfig{
		CleanupInterval: -1,
		Clock:           clock.Now,
	})
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	store.Increment(ctx, "ratelimit:stale", 1, time.Second)
	clock.Advance(time.Minute)

	g := newTestGovernor(t, testConfig(), WithStore(store))
	before := store.Size()
	NewSweeper(g, "@every 1h").RunOnce(ctx)

	if after := store.Size(); after != before-1 {
		t.Errorf("Expected the expired counter purged, size %d -> %d", before, after)
	}
}
