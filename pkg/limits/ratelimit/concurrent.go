package ratelimit

import (
	"errors"
	"sync/atomic"
)

// ErrConcurrencyExceeded is returned when every concurrency slot is taken.
var ErrConcurrencyExceeded = errors.New("concurrency limit exceeded")

// ConcurrencyLimiter caps how many units of work run at once. It is a
// counting semaphore on atomics; Acquire never blocks.
//
// A limit of zero or less disables the cap. The limit can be changed while
// slots are held; holders above a lowered limit keep their slots.
type ConcurrencyLimiter struct {
	limit    atomic.Int64
	inFlight atomic.Int64
}

// NewConcurrencyLimiter creates a limiter admitting limit holders at once.
func NewConcurrencyLimiter(limit int) *ConcurrencyLimiter {
	cl := &ConcurrencyLimiter{}
	cl.limit.Store(int64(limit))
	return cl
}

// Acquire takes a slot and reports whether it succeeded. Every successful
// Acquire must be paired with one Release.
func (cl *ConcurrencyLimiter) Acquire() bool {
	n := cl.inFlight.Add(1)
	if limit := cl.limit.Load(); limit > 0 && n > limit {
		cl.inFlight.Add(-1)
		return false
	}
	return true
}

// Release returns a slot taken by Acquire.
func (cl *ConcurrencyLimiter) Release() {
	if cl.inFlight.Add(-1) < 0 {
		cl.inFlight.Store(0)
	}
}

// Full reports whether Acquire would fail right now.
func (cl *ConcurrencyLimiter) Full() bool {
	limit := cl.limit.Load()
	return limit > 0 && cl.inFlight.Load() >= limit
}

// InFlight returns the number of held slots.
func (cl *ConcurrencyLimiter) InFlight() int64 {
	return cl.inFlight.Load()
}

// Limit returns the configured cap (0 when disabled).
func (cl *ConcurrencyLimiter) Limit() int64 {
	if limit := cl.limit.Load(); limit > 0 {
		return limit
	}
	return 0
}

// SetLimit changes the cap.
func (cl *ConcurrencyLimiter) SetLimit(limit int) {
	cl.limit.Store(int64(limit))
}
