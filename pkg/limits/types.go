package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mercator-hq/sentinel/pkg/jobs"
	"mercator-hq/sentinel/pkg/limits/budget"
	"mercator-hq/sentinel/pkg/limits/circuit"
	"mercator-hq/sentinel/pkg/limits/ratelimit"
)

// LimitType names the control that rejected a call.
type LimitType string

const (
	// LimitRate is the per-minute rate limiter.
	LimitRate LimitType = "rate_limit"

	// LimitBudget is the daily token budget.
	LimitBudget LimitType = "budget"

	// LimitCircuit is the circuit breaker.
	LimitCircuit LimitType = "circuit"

	// LimitConcurrency is the running-job cap.
	LimitConcurrency LimitType = "concurrency"
)

// Errors returned by the governor and its components. Use errors.Is.
var (
	// ErrRateLimitExceeded is returned when a rate limit is exceeded.
	ErrRateLimitExceeded = ratelimit.ErrRateLimitExceeded

	// ErrBudgetExceeded is returned when the daily token budget is exhausted.
	ErrBudgetExceeded = budget.ErrBudgetExceeded

	// ErrConcurrencyExceeded is returned when every running-job slot is taken.
	ErrConcurrencyExceeded = ratelimit.ErrConcurrencyExceeded

	// ErrCircuitOpen is returned when a circuit denies a call.
	ErrCircuitOpen = circuit.ErrCircuitOpen

	// ErrReservationFinalized is returned when a reservation is committed twice.
	ErrReservationFinalized = budget.ErrReservationFinalized

	// ErrStoreUnavailable is returned when the shared budget store fails.
	ErrStoreUnavailable = budget.ErrStoreUnavailable

	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = jobs.ErrJobNotFound

	// ErrConfigInvalid is returned when the limits configuration is invalid.
	ErrConfigInvalid = errors.New("invalid limits configuration")
)

// LimitError is returned when admission control rejects a call.
// It wraps the component error, so errors.Is matches both the component
// sentinel and errors.As the component's concrete type.
type LimitError struct {
	// Type is the control that rejected the call.
	Type LimitType

	// Key is the rate limit key or circuit key that was checked.
	Key string

	// RetryAfter suggests how long to wait before retrying. Zero when the
	// control cannot tell (budget exhaustion lasts until reconfiguration or
	// the next UTC day).
	RetryAfter time.Duration

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Type, e.Key, e.Err)
}

// Unwrap returns the underlying error for error wrapping.
func (e *LimitError) Unwrap() error {
	return e.Err
}

// Call describes one outbound call to a backend.
type Call struct {
	// Operation is the backend operation name, for example "review".
	Operation string

	// Params are the call parameters. Only identifying parameters
	// (cwd, model, provider, workingDirectory) select the circuit.
	Params map[string]string

	// EstimatedTokens is reserved against the daily budget before the call.
	// When zero and Prompt is set, the Governor's estimator fills it in.
	EstimatedTokens int64

	// Prompt is the call's input text, used only for estimation.
	Prompt string

	// MaxOutputTokens caps the completion part of an estimate.
	MaxOutputTokens int64

	// RateKey selects the rate limit window. Empty means the global window.
	RateKey string

	// Metadata is attached to the job created by Submit.
	Metadata map[string]any
}

// Usage is what a completed call consumed.
type Usage struct {
	// Tokens is the actual token count, committed to the budget.
	Tokens int64 `json:"tokens"`

	// CostUSD is the call's cost, reported per operation in budget status.
	CostUSD float64 `json:"cost_usd"`
}

// Result is what a collaborator returns from a call.
type Result struct {
	// Usage is committed to the budget on success.
	Usage Usage `json:"usage"`

	// Value is the collaborator's payload, returned to the caller or stored
	// as the job result.
	Value any `json:"value,omitempty"`
}

// CallFunc performs the backend call. progress reports completion for
// calls submitted as jobs; it does nothing for Execute.
type CallFunc func(ctx context.Context, progress jobs.ProgressFunc) (Result, error)
