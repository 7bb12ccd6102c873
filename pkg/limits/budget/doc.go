// Package budget enforces a daily token budget with a reserve, commit and
// release protocol.
//
// # Overview
//
// A Tracker keeps a ledger per UTC calendar day. Committed usage counts
// toward the day; open reservations count toward admission until they are
// resolved:
//
//	tracker := budget.NewTracker(budget.Config{MaxTokensPerDay: 1000})
//
//	res, err := tracker.Reserve(ctx, 600) // holds 600
//	if errors.Is(err, budget.ErrBudgetExceeded) {
//	    // reject the call
//	}
//
//	// on success
//	tracker.Commit(ctx, "generate", 540, 0.0081, res)
//	// on failure
//	tracker.Release(ctx, res)
//
// Every reservation must be resolved exactly once. Committing twice returns
// ErrReservationFinalized; releasing twice is a no-op.
//
// # Day Rollover
//
// The first operation on a new UTC date starts consumed usage at zero.
// Reservations made before midnight stay open and are charged to the day
// they are committed on.
//
// # Reservation Expiry
//
// With Config.ReservationTTL set, ExpireReservations releases reservations
// older than the TTL and logs each one. Expiry is off by default.
//
// # Shared Store
//
// With Config.Store set, the budget is shared through a
// storage.CounterStore using the keys:
//
//	budget:<date>:consumed     committed tokens for a UTC date
//	budget:outstanding         tokens held by open reservations
//	budget:reservation:<id>    claim marker for one reservation
//
// The budget fails closed. A store error on Check or Reserve rejects the
// call with ErrStoreUnavailable. Commit and Release retry StoreRetries times
// and then return ErrStoreUnavailable, keeping the reservation open locally
// so a later Release can finish it.
package budget
