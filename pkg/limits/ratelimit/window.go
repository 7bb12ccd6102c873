package ratelimit

import "time"

// window is a fixed counting window for one key.
// The window starts at the first request and covers [start, start+length).
type window struct {
	start time.Time
	count int64
}

// roll starts a fresh window if the current one has ended.
func (w *window) roll(now time.Time, length time.Duration) {
	if now.Sub(w.start) >= length {
		w.start = now
		w.count = 0
	}
}

// resetAt returns when the window ends.
func (w *window) resetAt(length time.Duration) time.Time {
	return w.start.Add(length)
}

// retryAfter returns the time left in the window, never negative.
func (w *window) retryAfter(now time.Time, length time.Duration) time.Duration {
	d := w.resetAt(length).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// slotStart returns the epoch-aligned start of the window containing now.
// Shared counters use aligned slots so every process agrees on boundaries.
func slotStart(now time.Time, length time.Duration) time.Time {
	return now.Truncate(length)
}
