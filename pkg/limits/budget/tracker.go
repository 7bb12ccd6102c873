package budget

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker bounds cumulative token spend per UTC calendar day.
//
// Admission counts committed usage plus every open reservation, so a call
// that reserved its estimate cannot be overtaken by later calls. Reserve
// re-validates under the lock and never trusts an earlier Check.
//
// # Day Rollover
//
// The ledger is keyed by UTC date. The first operation on a new date resets
// consumed usage to zero; open reservations are carried forward and charge
// the day on which they are committed.
//
// # Shared Store
//
// With Config.Store set, consumed and outstanding totals live in the store
// and several processes enforce one budget. See shared.go.
type Tracker struct {
	mu     sync.Mutex
	limit  int64
	ledger *ledger

	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a daily token budget tracker.
//
// Example:
//
//	tracker := budget.NewTracker(budget.Config{MaxTokensPerDay: 1_000_000})
//	res, err := tracker.Reserve(ctx, 4000)
//	if err != nil {
//	    return err
//	}
//	// ... make the call ...
//	err = tracker.Commit(ctx, "chat", actualTokens, costUSD, res)
func NewTracker(cfg Config) *Tracker {
	if cfg.AlertThreshold == 0 {
		cfg.AlertThreshold = 0.8
	}
	if cfg.StoreRetries <= 0 {
		cfg.StoreRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Tracker{
		limit:  cfg.MaxTokensPerDay,
		ledger: newLedger(dateKey(cfg.Clock())),
		cfg:    cfg,
		logger: cfg.Logger.With("component", "budget"),
		now:    cfg.Clock,
	}
}

// Check fails with *ExceededError when consumed usage plus open
// reservations has reached the daily cap.
func (t *Tracker) Check(ctx context.Context) error {
	if t.cfg.Store != nil {
		return t.checkShared(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollLocked()
	if t.limit <= 0 {
		return nil
	}

	outstanding := t.ledger.outstandingSum()
	if t.ledger.consumed+outstanding >= t.limit {
		return &ExceededError{
			Limit:       t.limit,
			Consumed:    t.ledger.consumed,
			Outstanding: outstanding,
		}
	}
	return nil
}

// Reserve holds estimatedTokens against today's budget. It fails with
// *ExceededError, leaving the budget untouched, if the hold would take
// consumed plus outstanding past the cap. A reservation that exactly fills
// the budget is admitted.
func (t *Tracker) Reserve(ctx context.Context, estimatedTokens int64) (*Reservation, error) {
	if estimatedTokens < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, estimatedTokens)
	}
	if t.cfg.Store != nil {
		return t.reserveShared(ctx, estimatedTokens)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollLocked()

	outstanding := t.ledger.outstandingSum()
	if t.limit > 0 && t.ledger.consumed+outstanding+estimatedTokens > t.limit {
		return nil, &ExceededError{
			Limit:       t.limit,
			Consumed:    t.ledger.consumed,
			Outstanding: outstanding,
			Requested:   estimatedTokens,
		}
	}

	res := t.newReservation(estimatedTokens)
	t.ledger.outstanding[res.ID] = &pending{res: *res}
	return res, nil
}

// Commit records actual usage. With a reservation it resolves the
// reservation and charges actualTokens to today; with res == nil it charges
// directly. Committing a reservation that was already committed, released
// or expired returns ErrReservationFinalized.
func (t *Tracker) Commit(ctx context.Context, operation string, actualTokens int64, costUSD float64, res *Reservation) error {
	if actualTokens < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, actualTokens)
	}
	if t.cfg.Store != nil {
		return t.commitShared(ctx, operation, actualTokens, costUSD, res)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollLocked()

	if res != nil {
		if _, ok := t.ledger.outstanding[res.ID]; !ok {
			return fmt.Errorf("commit %s: %w", res.ID, ErrReservationFinalized)
		}
		delete(t.ledger.outstanding, res.ID)
	}

	t.ledger.charge(operation, actualTokens, costUSD)
	return nil
}

// Release resolves a reservation at zero charge. Releasing an unknown or
// already resolved reservation is a no-op.
func (t *Tracker) Release(ctx context.Context, res *Reservation) error {
	if res == nil {
		return nil
	}
	if t.cfg.Store != nil {
		return t.releaseShared(ctx, res)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollLocked()
	delete(t.ledger.outstanding, res.ID)
	return nil
}

// Status returns a snapshot of the current day. In shared mode the totals
// come from the store; if it is unreachable the local view is returned
// along with the error.
func (t *Tracker) Status(ctx context.Context) (Status, error) {
	t.mu.Lock()
	t.rollLocked()
	status := Status{
		Date:            t.ledger.dateKey,
		Limit:           max(t.limit, 0),
		Consumed:        t.ledger.consumed,
		Outstanding:     t.ledger.outstandingSum(),
		Reservations:    len(t.ledger.outstanding),
		CostUSD:         t.ledger.costUSD,
		CostByOperation: maps.Clone(t.ledger.costByOp),
	}
	t.mu.Unlock()

	var err error
	if t.cfg.Store != nil {
		var consumed, outstanding int64
		consumed, outstanding, err = t.sharedTotals(ctx, status.Date)
		if err == nil {
			status.Consumed = consumed
			status.Outstanding = outstanding
		}
	}

	if status.Limit > 0 {
		used := status.Consumed + status.Outstanding
		status.Remaining = max(status.Limit-used, 0)
		status.Percentage = float64(used) / float64(status.Limit)
		status.AlertTriggered = status.Percentage >= t.cfg.AlertThreshold
	}

	return status, err
}

// Reservations returns the reservations this process holds open.
func (t *Tracker) Reservations() []Reservation {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Reservation, 0, len(t.ledger.outstanding))
	for _, p := range t.ledger.outstanding {
		out = append(out, p.res)
	}
	return out
}

// ExpireReservations releases reservations older than ReservationTTL and
// returns them. It does nothing when ReservationTTL is zero.
func (t *Tracker) ExpireReservations(ctx context.Context, now time.Time) []Reservation {
	if t.cfg.ReservationTTL <= 0 {
		return nil
	}

	t.mu.Lock()
	var stale []Reservation
	for _, p := range t.ledger.outstanding {
		if now.Sub(p.res.CreatedAt) >= t.cfg.ReservationTTL {
			stale = append(stale, p.res)
		}
	}
	t.mu.Unlock()

	var expired []Reservation
	for i := range stale {
		res := stale[i]
		if err := t.Release(ctx, &res); err != nil {
			t.logger.Warn("failed to expire reservation",
				"reservation_id", res.ID,
				"error", err,
			)
			continue
		}
		t.logger.Warn("reservation expired without commit or release",
			"reservation_id", res.ID,
			"amount", res.Amount,
			"age", now.Sub(res.CreatedAt),
		)
		expired = append(expired, res)
	}
	return expired
}

// SetLimit changes the daily cap. Open reservations are kept.
func (t *Tracker) SetLimit(maxTokensPerDay int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limit = maxTokensPerDay
}

// Limit returns the daily cap.
func (t *Tracker) Limit() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limit
}

// rollLocked moves the ledger to the current UTC date.
// Caller must hold the lock.
func (t *Tracker) rollLocked() {
	date := dateKey(t.now())
	previous := t.ledger.dateKey
	if consumed, rolled := t.ledger.roll(date); rolled {
		t.logger.Info("budget day rolled over",
			"previous_date", previous,
			"previous_consumed", consumed,
			"carried_reservations", len(t.ledger.outstanding),
		)
	}
}

func (t *Tracker) newReservation(amount int64) *Reservation {
	now := t.now()
	return &Reservation{
		ID:        uuid.New().String(),
		Amount:    amount,
		CreatedAt: now,
		DateKey:   dateKey(now),
	}
}
