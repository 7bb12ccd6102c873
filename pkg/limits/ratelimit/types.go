package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/sentinel/pkg/limits/storage"
)

// GlobalKey is the key used when Check is called with an empty key.
const GlobalKey = "global"

// DefaultWindow is the fixed window length.
const DefaultWindow = time.Minute

// ErrRateLimitExceeded is returned (wrapped in *ExceededError) when the
// current window for a key is full.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ExceededError describes a rejected request.
type ExceededError struct {
	// Key is the rate limit key that was checked.
	Key string

	// Limit is the configured maximum per window.
	Limit int64

	// RetryAfter is the time until the current window ends.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q: %d requests per minute (retry after %s)",
		e.Key, e.Limit, e.RetryAfter.Round(time.Second))
}

// Unwrap returns ErrRateLimitExceeded so errors.Is matches.
func (e *ExceededError) Unwrap() error {
	return ErrRateLimitExceeded
}

// Config configures a Limiter.
type Config struct {
	// MaxPerMinute is the maximum number of checks admitted per window and
	// key. Zero or negative disables the limiter.
	MaxPerMinute int

	// Window is the fixed window length.
	// Default: 1 minute
	Window time.Duration

	// Store, when set, moves the counters into a shared store so several
	// processes enforce one limit. Store errors fail open.
	Store storage.CounterStore

	// OnStoreError is called when the shared store fails and the request is
	// admitted anyway.
	OnStoreError func(key string, err error)

	// Logger receives store failure warnings.
	// Default: slog.Default()
	Logger *slog.Logger

	// Clock overrides time.Now. Used by tests.
	Clock func() time.Time
}

// Status is a snapshot of one key's current window.
type Status struct {
	// Key is the rate limit key.
	Key string `json:"key"`

	// Limit is the configured maximum per window (0 when disabled).
	Limit int64 `json:"limit"`

	// Used is how many requests were admitted in the current window.
	Used int64 `json:"used"`

	// Remaining is how many requests remain in the current window.
	Remaining int64 `json:"remaining"`

	// Reset is when the current window ends. Zero if the key has no window.
	Reset time.Time `json:"reset"`
}
