package circuit

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Breaker tracks failures per key and stops calls to keys that keep failing.
//
// # States
//
//	closed    --failures >= FailureThreshold-->  open
//	open      --ResetTimeout elapsed, next CanExecute-->  half-open
//	half-open --RecordSuccess-->  closed (entry deleted)
//	half-open --RecordFailure-->  open (OpenedAt reset)
//
// Any entry whose last failure is older than FailureWindow is deleted on the
// next CanExecute for its key. In the closed state each success takes one
// failure off the count, and the entry is deleted when it reaches zero.
type Breaker struct {
	mu      sync.Mutex
	entries map[string]*entry

	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// entry is the mutable state of one circuit.
type entry struct {
	Entry

	// trialAt is when the half-open trial was admitted. Zero when no trial
	// is in flight.
	trialAt time.Time
}

type transition struct {
	key      string
	from, to State
}

// NewBreaker creates a circuit breaker.
func NewBreaker(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Breaker{
		entries: make(map[string]*entry),
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "circuit"),
		now:     cfg.Clock,
	}
}

// CanExecute reports whether a call for key may proceed.
//
// An open circuit whose ResetTimeout has elapsed moves to half-open and
// admits exactly one trial call. Other callers are denied until the trial
// reports back with RecordSuccess, RecordFailure or Abort. A trial that
// never reports back is replaced after another ResetTimeout.
func (b *Breaker) CanExecute(key string) Decision {
	b.mu.Lock()
	decision, tr := b.canExecuteLocked(key)
	b.mu.Unlock()

	b.notify(tr)
	return decision
}

func (b *Breaker) canExecuteLocked(key string) (Decision, *transition) {
	e, ok := b.entries[key]
	if !ok {
		return Decision{Allowed: true}, nil
	}

	now := b.now()

	if now.Sub(e.LastFailureTime) > b.cfg.FailureWindow {
		delete(b.entries, key)
		return Decision{Allowed: true}, b.transitionTo(e, StateClosed)
	}

	switch e.State {
	case StateOpen:
		elapsed := now.Sub(e.OpenedAt)
		if elapsed <= b.cfg.ResetTimeout {
			return Decision{
				Reason:     "too many recent failures",
				RetryAfter: b.cfg.ResetTimeout - elapsed,
			}, nil
		}
		tr := b.transitionTo(e, StateHalfOpen)
		e.trialAt = now
		return Decision{Allowed: true}, tr

	case StateHalfOpen:
		if !e.trialAt.IsZero() && now.Sub(e.trialAt) <= b.cfg.ResetTimeout {
			return Decision{
				Reason:     "trial call in progress",
				RetryAfter: b.cfg.ResetTimeout - now.Sub(e.trialAt),
			}, nil
		}
		e.trialAt = now
		return Decision{Allowed: true}, nil
	}

	return Decision{Allowed: true}, nil
}

// RecordSuccess reports a successful call for key.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	var tr *transition

	if e, ok := b.entries[key]; ok {
		switch e.State {
		case StateHalfOpen:
			delete(b.entries, key)
			tr = b.transitionTo(e, StateClosed)
		case StateClosed:
			e.Failures--
			if e.Failures <= 0 {
				delete(b.entries, key)
			}
		}
	}
	b.mu.Unlock()

	b.notify(tr)
}

// RecordFailure reports a failed call for key. err may be nil.
func (b *Breaker) RecordFailure(key string, err error) {
	b.mu.Lock()

	now := b.now()
	e, ok := b.entries[key]
	if !ok {
		e = &entry{Entry: Entry{Key: key, State: StateClosed}}
		b.entries[key] = e
	}

	e.Failures++
	e.LastFailureTime = now
	if err != nil {
		e.LastError = err.Error()
	}

	var tr *transition
	switch e.State {
	case StateHalfOpen:
		tr = b.transitionTo(e, StateOpen)
		e.OpenedAt = now
		e.trialAt = time.Time{}
	case StateClosed:
		if e.Failures >= b.cfg.FailureThreshold {
			tr = b.transitionTo(e, StateOpen)
			e.OpenedAt = now
		}
	}
	b.mu.Unlock()

	b.notify(tr)
}

// Abort gives up a half-open trial that was admitted but never ran, so the
// next caller can take it. It does nothing in other states.
func (b *Breaker) Abort(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[key]; ok && e.State == StateHalfOpen {
		e.trialAt = time.Time{}
	}
}

// GetState returns a snapshot of the circuit for key. The second result is
// false when the key has no entry, which means closed with no failures.
func (b *Breaker) GetState(key string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return Entry{Key: key, State: StateClosed}, false
	}
	return e.Entry, true
}

// Reset forgets the circuit for key.
func (b *Breaker) Reset(key string) {
	b.mu.Lock()
	var tr *transition
	if e, ok := b.entries[key]; ok {
		delete(b.entries, key)
		tr = b.transitionTo(e, StateClosed)
	}
	b.mu.Unlock()

	b.notify(tr)
}

// ResetAll forgets every circuit.
func (b *Breaker) ResetAll() {
	b.mu.Lock()
	var trs []*transition
	for _, e := range b.entries {
		trs = append(trs, b.transitionTo(e, StateClosed))
	}
	b.entries = make(map[string]*entry)
	b.mu.Unlock()

	for _, tr := range trs {
		b.notify(tr)
	}
}

// Stats returns counts by state and every entry, sorted by key.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		Total:   len(b.entries),
		Entries: make([]Entry, 0, len(b.entries)),
	}
	for _, e := range b.entries {
		switch e.State {
		case StateClosed:
			stats.Closed++
		case StateOpen:
			stats.Open++
		case StateHalfOpen:
			stats.HalfOpen++
		}
		stats.Entries = append(stats.Entries, e.Entry)
	}

	sort.Slice(stats.Entries, func(i, j int) bool {
		return stats.Entries[i].Key < stats.Entries[j].Key
	})
	return stats
}

// transitionTo sets e's state and returns the transition, or nil if the
// state did not change.
// Caller must hold the lock.
func (b *Breaker) transitionTo(e *entry, to State) *transition {
	from := e.State
	e.State = to
	if from == to {
		return nil
	}
	return &transition{key: e.Key, from: from, to: to}
}

func (b *Breaker) notify(tr *transition) {
	if tr == nil {
		return
	}

	level := slog.LevelInfo
	if tr.to == StateOpen {
		level = slog.LevelWarn
	}
	b.logger.Log(context.Background(), level, "circuit state changed",
		"key", tr.key,
		"from", tr.from,
		"to", tr.to,
	)

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(tr.key, tr.from, tr.to)
	}
}
