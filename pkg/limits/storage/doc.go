// Package storage provides shared counter stores for limit state.
//
// # Overview
//
// By default every limit in Sentinel lives in process memory and resets on
// restart. When several bridge instances must enforce one global rate or
// budget, the limiters delegate their arithmetic to a CounterStore:
//
//   - Memory: in-process counters with TTL (tests, single instance)
//   - SQLite: file-backed counters shared by processes on one host
//   - Redis: network counters shared by processes on many hosts
//   - Postgres: a counter table, for deployments that already run PostgreSQL
//
// The memory, SQLite and Postgres stores keep expired entries until swept;
// they implement Cleaner.
//
// # Usage
//
//	store, err := storage.NewSQLiteStore("/var/lib/sentinel/counters.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	count, err := store.Increment(ctx, "ratelimit:global:29012345", 1, time.Minute)
//
// # Semantics
//
// Increment and Decrement are atomic with respect to other callers of the
// same store. A TTL is attached only when the key is created; later
// increments never extend it. Expired keys read as zero.
//
// # Thread Safety
//
// All stores are safe for concurrent use from multiple goroutines.
package storage
