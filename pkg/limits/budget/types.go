package budget

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/sentinel/pkg/limits/storage"
)

var (
	// ErrBudgetExceeded is returned (wrapped in *ExceededError) when the
	// daily token budget cannot admit a call.
	ErrBudgetExceeded = errors.New("daily token budget exceeded")

	// ErrReservationFinalized is returned when a reservation that was
	// already committed, released or expired is committed again.
	ErrReservationFinalized = errors.New("reservation already finalized")

	// ErrStoreUnavailable is returned when the shared counter store cannot
	// be reached. The budget fails closed on it.
	ErrStoreUnavailable = errors.New("budget store unavailable")

	// ErrInvalidAmount is returned for negative token amounts.
	ErrInvalidAmount = errors.New("token amount cannot be negative")
)

// ExceededError describes a rejected budget check or reservation.
type ExceededError struct {
	// Limit is the configured daily token cap.
	Limit int64

	// Consumed is the committed usage for the current day.
	Consumed int64

	// Outstanding is the sum of open reservations.
	Outstanding int64

	// Requested is the reservation amount that was refused (0 for Check).
	Requested int64
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	if e.Requested > 0 {
		return fmt.Sprintf("daily token budget exceeded: %d consumed + %d reserved + %d requested > %d",
			e.Consumed, e.Outstanding, e.Requested, e.Limit)
	}
	return fmt.Sprintf("daily token budget exceeded: %d consumed + %d reserved >= %d",
		e.Consumed, e.Outstanding, e.Limit)
}

// Unwrap returns ErrBudgetExceeded so errors.Is matches.
func (e *ExceededError) Unwrap() error {
	return ErrBudgetExceeded
}

// Config configures a Tracker.
type Config struct {
	// MaxTokensPerDay is the cap on tokens per UTC calendar day.
	// Zero or negative disables enforcement; usage is still recorded.
	MaxTokensPerDay int64

	// AlertThreshold is the fraction (0.0-1.0) of the cap at which
	// Status reports AlertTriggered.
	// Default: 0.8
	AlertThreshold float64

	// ReservationTTL, when positive, lets ExpireReservations release
	// reservations older than this. Zero disables expiry.
	ReservationTTL time.Duration

	// Store, when set, moves the counters into a shared store so several
	// processes enforce one budget. Store errors fail closed.
	Store storage.CounterStore

	// StoreRetries is how many attempts commit and release make against
	// the shared store before returning ErrStoreUnavailable.
	// Default: 3
	StoreRetries int

	// RetryBackoff is the wait before the first retry; it grows linearly.
	// Default: 50ms
	RetryBackoff time.Duration

	// Logger receives rollover, expiry and store warnings.
	// Default: slog.Default()
	Logger *slog.Logger

	// Clock overrides time.Now. Used by tests.
	Clock func() time.Time
}

// Reservation is a provisional hold against the daily budget.
// It is terminated exactly once by Commit or Release.
type Reservation struct {
	// ID is a UUIDv4, unique across processes.
	ID string `json:"id"`

	// Amount is the number of tokens held.
	Amount int64 `json:"amount"`

	// CreatedAt is when the reservation was made.
	CreatedAt time.Time `json:"created_at"`

	// DateKey is the UTC date (2006-01-02) the reservation was made on.
	DateKey string `json:"date_key"`
}

// Status is a snapshot of the current day's budget.
type Status struct {
	// Date is the UTC date of the ledger.
	Date string `json:"date"`

	// Limit is the daily cap (0 when disabled).
	Limit int64 `json:"limit"`

	// Consumed is committed usage for the day.
	Consumed int64 `json:"consumed"`

	// Outstanding is the sum of open reservations.
	Outstanding int64 `json:"outstanding"`

	// Reservations is how many reservations this process holds open.
	Reservations int `json:"reservations"`

	// Remaining is Limit minus Consumed and Outstanding, never negative.
	Remaining int64 `json:"remaining"`

	// Percentage is (Consumed+Outstanding)/Limit.
	Percentage float64 `json:"percentage"`

	// AlertTriggered reports that Percentage reached AlertThreshold.
	AlertTriggered bool `json:"alert_triggered"`

	// CostUSD is the cost committed today by this process.
	CostUSD float64 `json:"cost_usd"`

	// CostByOperation breaks CostUSD down by operation name.
	CostByOperation map[string]float64 `json:"cost_by_operation,omitempty"`
}
