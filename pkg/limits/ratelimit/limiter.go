package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Limiter bounds request throughput per fixed window and key.
//
// In local mode each key gets a window that starts with its first request.
// With a shared store the window is the epoch-aligned slot, and the count
// lives in the store under "ratelimit:<key>:<slot>".
//
// Check-then-increment happens under one mutex, so concurrent callers can
// never push a window past its limit.
type Limiter struct {
	mu      sync.Mutex
	limit   int64
	length  time.Duration
	windows map[string]*window

	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewLimiter creates a rate limiter.
//
// Example:
//
//	limiter := ratelimit.NewLimiter(ratelimit.Config{MaxPerMinute: 60})
//	if err := limiter.Check(ctx, "user-42"); err != nil {
//	    // errors.Is(err, ratelimit.ErrRateLimitExceeded)
//	}
func NewLimiter(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Limiter{
		limit:   int64(cfg.MaxPerMinute),
		length:  cfg.Window,
		windows: make(map[string]*window),
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "ratelimit"),
		now:     cfg.Clock,
	}
}

// Check admits one request for key or returns an *ExceededError.
// An empty key is treated as GlobalKey.
func (l *Limiter) Check(ctx context.Context, key string) error {
	if key == "" {
		key = GlobalKey
	}

	l.mu.Lock()
	limit := l.limit
	l.mu.Unlock()

	if limit <= 0 {
		return nil
	}

	if l.cfg.Store != nil {
		return l.checkShared(ctx, key, limit)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windowLocked(key, now)
	w.roll(now, l.length)

	if w.count >= limit {
		return &ExceededError{
			Key:        key,
			Limit:      limit,
			RetryAfter: w.retryAfter(now, l.length),
		}
	}

	w.count++
	return nil
}

// checkShared counts the request in the shared store.
// The store increments before comparing, so a rejected request still
// consumes a slot in the store; this only ever errs toward rejecting.
func (l *Limiter) checkShared(ctx context.Context, key string, limit int64) error {
	now := l.now()
	start := slotStart(now, l.length)
	storeKey := fmt.Sprintf("ratelimit:%s:%d", key, start.UnixNano()/int64(l.length))

	count, err := l.cfg.Store.Increment(ctx, storeKey, 1, l.length)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, allowing request",
			"key", key,
			"error", err,
		)
		if l.cfg.OnStoreError != nil {
			l.cfg.OnStoreError(key, err)
		}
		return nil
	}

	l.mu.Lock()
	w := l.windowLocked(key, start)
	w.start = start
	w.count = min(count, limit)
	l.mu.Unlock()

	if count > limit {
		return &ExceededError{
			Key:        key,
			Limit:      limit,
			RetryAfter: start.Add(l.length).Sub(now),
		}
	}
	return nil
}

// windowLocked returns the window for key, creating it at now.
// Caller must hold the lock.
func (l *Limiter) windowLocked(key string, now time.Time) *window {
	w, ok := l.windows[key]
	if !ok {
		w = &window{start: now}
		l.windows[key] = w
	}
	return w
}

// Status returns the current window for key as last seen by this process.
func (l *Limiter) Status(key string) Status {
	if key == "" {
		key = GlobalKey
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	status := Status{Key: key, Limit: max(l.limit, 0)}
	if l.limit <= 0 {
		return status
	}

	status.Remaining = l.limit
	w, ok := l.windows[key]
	if !ok {
		return status
	}

	now := l.now()
	if now.Sub(w.start) >= l.length {
		return status
	}

	status.Used = w.count
	status.Remaining = max(l.limit-w.count, 0)
	status.Reset = w.resetAt(l.length)
	return status
}

// Keys returns the keys that have a window in this process.
func (l *Limiter) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(l.windows))
	for k := range l.windows {
		keys = append(keys, k)
	}
	return keys
}

// SetLimit changes the maximum per window. Existing windows keep their counts.
func (l *Limiter) SetLimit(maxPerMinute int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = int64(maxPerMinute)
}

// Limit returns the configured maximum per window.
func (l *Limiter) Limit() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Reset clears the local window for key. Shared counters are untouched.
func (l *Limiter) Reset(key string) {
	if key == "" {
		key = GlobalKey
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// ResetAll clears every local window.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string]*window)
}
