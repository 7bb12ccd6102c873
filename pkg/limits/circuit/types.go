package circuit

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// State is the state of one circuit.
type State string

const (
	// StateClosed admits calls and counts failures.
	StateClosed State = "closed"

	// StateOpen denies calls until ResetTimeout has passed.
	StateOpen State = "open"

	// StateHalfOpen admits a single trial call.
	StateHalfOpen State = "half-open"
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// ErrCircuitOpen is returned (wrapped in *OpenError) when a circuit denies a call.
var ErrCircuitOpen = errors.New("circuit open")

// OpenError describes a denied call.
type OpenError struct {
	// Key is the circuit key.
	Key string

	// Reason is the breaker's explanation.
	Reason string

	// RetryAfter is how long until the circuit admits a trial call.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open for %q: %s (retry after %s)", e.Key, e.Reason, e.RetryAfter.Round(time.Second))
}

// Unwrap returns ErrCircuitOpen so errors.Is matches.
func (e *OpenError) Unwrap() error {
	return ErrCircuitOpen
}

// Config configures a Breaker.
type Config struct {
	// FailureThreshold is how many failures open a circuit.
	// Default: 5
	FailureThreshold int

	// ResetTimeout is how long an open circuit waits before a trial call.
	// Default: 60 seconds
	ResetTimeout time.Duration

	// FailureWindow is how long after the last failure an entry is
	// forgotten, whatever its state.
	// Default: 5 minutes
	FailureWindow time.Duration

	// OnStateChange is called after each transition, outside the lock.
	// Deleting an entry reports a transition to StateClosed.
	OnStateChange func(key string, from, to State)

	// Logger receives transition logs.
	// Default: slog.Default()
	Logger *slog.Logger

	// Clock overrides time.Now. Used by tests.
	Clock func() time.Time
}

// Entry is a snapshot of one tracked circuit.
type Entry struct {
	Key             string    `json:"key"`
	State           State     `json:"state"`
	Failures        int       `json:"failures"`
	LastFailureTime time.Time `json:"last_failure_time"`
	OpenedAt        time.Time `json:"opened_at,omitzero"`
	LastError       string    `json:"last_error,omitempty"`
}

// Decision is the result of CanExecute.
type Decision struct {
	// Allowed reports whether the call may proceed.
	Allowed bool

	// Reason explains a denial.
	Reason string

	// RetryAfter is set on denial.
	RetryAfter time.Duration
}

// Err converts a denial into an *OpenError for key. It returns nil when the
// call is allowed.
func (d Decision) Err(key string) error {
	if d.Allowed {
		return nil
	}
	return &OpenError{Key: key, Reason: d.Reason, RetryAfter: d.RetryAfter}
}

// Stats aggregates every tracked circuit. Keys with no entry are closed and
// not counted.
type Stats struct {
	Total    int     `json:"total"`
	Closed   int     `json:"closed"`
	Open     int     `json:"open"`
	HalfOpen int     `json:"half_open"`
	Entries  []Entry `json:"entries"`
}
