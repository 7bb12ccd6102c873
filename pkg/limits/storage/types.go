package storage

import (
	"context"
	"errors"
	"time"
)

// CounterStore is an atomic integer counter service shared between Sentinel
// instances. Implementations must be thread-safe.
type CounterStore interface {
	// Increment adds amount to key and returns the new value. If the key does
	// not exist it is created with the given TTL (zero means no expiry).
	Increment(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error)

	// Get returns the current value of key, or 0 if it does not exist.
	Get(ctx context.Context, key string) (int64, error)

	// Decrement subtracts amount from key and returns the new value.
	// A missing key is treated as 0, so the result may be negative.
	Decrement(ctx context.Context, key string, amount int64) (int64, error)

	// Close releases any resources held by the store.
	// The store should not be used after calling Close.
	Close() error
}

// Pinger is implemented by stores that can report their availability.
// It is used by readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cleaner is implemented by stores whose expired counters occupy space
// until deleted. The sweeper calls it on its schedule.
type Cleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

var (
	// ErrStoreClosed is returned when a store is used after Close.
	ErrStoreClosed = errors.New("counter store closed")

	// ErrEmptyKey is returned when a counter key is empty.
	ErrEmptyKey = errors.New("counter key cannot be empty")
)

// expiry returns the absolute expiry for a TTL, or the zero time if ttl is
// not positive.
func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
