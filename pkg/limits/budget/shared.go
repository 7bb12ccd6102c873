package budget

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Shared store keys.
const (
	outstandingKey = "budget:outstanding"

	// consumedTTL is how long a day's consumed counter lives.
	consumedTTL = 48 * time.Hour

	// markerTTL bounds how long a reservation marker lives in the store.
	markerTTL = 48 * time.Hour
)

func consumedKey(date string) string {
	return "budget:" + date + ":consumed"
}

func reservationKey(id string) string {
	return "budget:reservation:" + id
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// sharedTotals reads the day's consumed counter and the outstanding counter.
func (t *Tracker) sharedTotals(ctx context.Context, date string) (int64, int64, error) {
	consumed, err := t.cfg.Store.Get(ctx, consumedKey(date))
	if err != nil {
		return 0, 0, unavailable("read consumed", err)
	}
	outstanding, err := t.cfg.Store.Get(ctx, outstandingKey)
	if err != nil {
		return 0, 0, unavailable("read outstanding", err)
	}
	return consumed, outstanding, nil
}

func (t *Tracker) snapshot() (int64, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()
	return t.limit, t.ledger.dateKey
}

func (t *Tracker) checkShared(ctx context.Context) error {
	limit, date := t.snapshot()
	if limit <= 0 {
		return nil
	}

	consumed, outstanding, err := t.sharedTotals(ctx, date)
	if err != nil {
		return err
	}
	if consumed+outstanding >= limit {
		return &ExceededError{
			Limit:       limit,
			Consumed:    consumed,
			Outstanding: outstanding,
		}
	}
	return nil
}

// reserveShared adds the estimate to the outstanding counter first and rolls
// it back if the cap is crossed, so concurrent processes never over-admit.
func (t *Tracker) reserveShared(ctx context.Context, estimatedTokens int64) (*Reservation, error) {
	limit, date := t.snapshot()
	store := t.cfg.Store

	outstanding, err := store.Increment(ctx, outstandingKey, estimatedTokens, 0)
	if err != nil {
		return nil, unavailable("reserve", err)
	}

	consumed, err := store.Get(ctx, consumedKey(date))
	if err != nil {
		t.rollbackOutstanding(ctx, estimatedTokens)
		return nil, unavailable("reserve", err)
	}

	if limit > 0 && consumed+outstanding > limit {
		t.rollbackOutstanding(ctx, estimatedTokens)
		return nil, &ExceededError{
			Limit:       limit,
			Consumed:    consumed,
			Outstanding: outstanding - estimatedTokens,
			Requested:   estimatedTokens,
		}
	}

	res := t.newReservation(estimatedTokens)
	if _, err := store.Increment(ctx, reservationKey(res.ID), 1, markerTTL); err != nil {
		t.rollbackOutstanding(ctx, estimatedTokens)
		return nil, unavailable("reserve", err)
	}

	t.mu.Lock()
	t.ledger.outstanding[res.ID] = &pending{res: *res}
	t.mu.Unlock()

	return res, nil
}

func (t *Tracker) rollbackOutstanding(ctx context.Context, amount int64) {
	err := t.retry(ctx, func(ctx context.Context) error {
		_, err := t.cfg.Store.Decrement(ctx, outstandingKey, amount)
		return err
	})
	if err != nil {
		t.logger.Error("failed to roll back outstanding tokens, shared budget is over-held",
			"amount", amount,
			"error", err,
		)
	}
}

func (t *Tracker) commitShared(ctx context.Context, operation string, actualTokens int64, costUSD float64, res *Reservation) error {
	if res == nil {
		err := t.retry(ctx, func(ctx context.Context) error {
			_, err := t.cfg.Store.Increment(ctx, consumedKey(dateKey(t.now())), actualTokens, consumedTTL)
			return err
		})
		if err != nil {
			return unavailable("commit", err)
		}

		t.mu.Lock()
		t.rollLocked()
		t.ledger.charge(operation, actualTokens, costUSD)
		t.mu.Unlock()
		return nil
	}

	p := t.pendingFor(res)
	err := t.finalize(ctx, p, actionCommit, actualTokens)
	switch {
	case errors.Is(err, ErrReservationFinalized):
		t.forgetSettled(p)
		return fmt.Errorf("commit %s: %w", res.ID, ErrReservationFinalized)
	case err != nil:
		t.logger.Warn("reservation commit failed, keeping it open for retry",
			"reservation_id", res.ID,
			"error", err,
		)
		return unavailable("commit", err)
	}

	t.mu.Lock()
	delete(t.ledger.outstanding, res.ID)
	t.rollLocked()
	t.ledger.charge(operation, actualTokens, costUSD)
	t.mu.Unlock()
	return nil
}

func (t *Tracker) releaseShared(ctx context.Context, res *Reservation) error {
	p := t.pendingFor(res)
	err := t.finalize(ctx, p, actionRelease, 0)
	switch {
	case errors.Is(err, ErrReservationFinalized):
		t.forgetSettled(p)
		return nil
	case err != nil:
		t.logger.Warn("reservation release failed, keeping it open for retry",
			"reservation_id", res.ID,
			"error", err,
		)
		return unavailable("release", err)
	}

	t.forget(res.ID)
	return nil
}

// pendingFor returns the local record for res, registering one if this
// process does not know it. The store claim decides whether it is still open.
func (t *Tracker) pendingFor(res *Reservation) *pending {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.ledger.outstanding[res.ID]
	if !ok {
		p = &pending{res: *res}
		t.ledger.outstanding[res.ID] = p
	}
	return p
}

func (t *Tracker) forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ledger.outstanding, id)
}

// forgetSettled drops p unless another action holds an unfinished claim on
// it, which must stay registered so its own retry can resume.
func (t *Tracker) forgetSettled(p *pending) {
	if !p.settled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ledger.outstanding[p.res.ID] == p {
		delete(t.ledger.outstanding, p.res.ID)
	}
}

// finalize resolves a reservation in the store in three resumable steps:
// claim the marker, charge consumed (commit only), then return the held
// amount to the outstanding counter.
//
// The claim adds -1 to the reservation marker. Exactly one finalizer sees 0;
// anything lower means another caller or process already finalized it, or
// the marker expired. Within this process only the action that made the
// claim may resume it, and only until it completes.
func (t *Tracker) finalize(ctx context.Context, p *pending, action finalizeAction, actualTokens int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done || (p.claimed && p.action != action) {
		return ErrReservationFinalized
	}

	store := t.cfg.Store
	charge := action == actionCommit

	if !p.claimed {
		var left int64
		err := t.retry(ctx, func(ctx context.Context) error {
			var err error
			left, err = store.Increment(ctx, reservationKey(p.res.ID), -1, markerTTL)
			return err
		})
		if err != nil {
			return err
		}
		if left < 0 {
			return ErrReservationFinalized
		}
		p.claimed = true
		p.action = action
	}

	if charge && !p.charged {
		err := t.retry(ctx, func(ctx context.Context) error {
			_, err := store.Increment(ctx, consumedKey(dateKey(t.now())), actualTokens, consumedTTL)
			return err
		})
		if err != nil {
			return err
		}
		p.charged = true
	}

	if !p.unreserved {
		err := t.retry(ctx, func(ctx context.Context) error {
			_, err := store.Decrement(ctx, outstandingKey, p.res.Amount)
			return err
		})
		if err != nil {
			return err
		}
		p.unreserved = true
	}

	p.done = true
	return nil
}

// retry runs fn up to StoreRetries times with a linearly growing backoff.
func (t *Tracker) retry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= t.cfg.StoreRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == t.cfg.StoreRetries {
			break
		}

		t.logger.Debug("budget store call failed, retrying",
			"attempt", attempt,
			"error", err,
		)

		timer := time.NewTimer(time.Duration(attempt) * t.cfg.RetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}
	return err
}
