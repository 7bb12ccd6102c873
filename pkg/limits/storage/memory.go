package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements CounterStore using in-memory storage.
// It provides no persistence and is only shared between goroutines of one
// process. All data is lost when the process exits.
//
// MemoryStore is thread-safe and supports concurrent access using sync.Mutex.
type MemoryStore struct {
	// counters maps key to counter value and expiry.
	counters map[string]*counter

	mu sync.Mutex

	// maxEntries is the maximum number of keys before the soonest-expiring
	// key is evicted.
	maxEntries int

	// cleanupInterval is how often to purge expired keys.
	cleanupInterval time.Duration

	// now returns the current time. Overridable in tests.
	now func() time.Time

	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// counter is a single stored value.
type counter struct {
	value     int64
	expiresAt time.Time
}

// MemoryStoreConfig configures the memory store.
type MemoryStoreConfig struct {
	// MaxEntries is the maximum number of keys to hold.
	// Default: 100,000
	MaxEntries int

	// CleanupInterval is how often to purge expired keys.
	// A negative value disables the background purge; expired keys are
	// still ignored on access.
	// Default: 1 minute
	CleanupInterval time.Duration

	// Clock overrides time.Now. Used by tests.
	Clock func() time.Time
}

// NewMemoryStore creates a new in-memory counter store with default settings.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithConfig(MemoryStoreConfig{})
}

// NewMemoryStoreWithConfig creates a new in-memory store with custom configuration.
func NewMemoryStoreWithConfig(cfg MemoryStoreConfig) *MemoryStore {
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 100000
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	store := &MemoryStore{
		counters:        make(map[string]*counter),
		maxEntries:      cfg.MaxEntries,
		cleanupInterval: cfg.CleanupInterval,
		now:             cfg.Clock,
		done:            make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		go store.cleanupLoop()
	}

	return store
}

// Increment adds amount to key and returns the new value.
func (m *MemoryStore) Increment(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	now := m.now()
	c := m.liveLocked(key, now)
	if c == nil {
		if len(m.counters) >= m.maxEntries {
			m.evictLocked()
		}
		c = &counter{expiresAt: expiry(now, ttl)}
		m.counters[key] = c
	}

	c.value += amount
	return c.value, nil
}

// Get returns the current value of key.
func (m *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	c := m.liveLocked(key, m.now())
	if c == nil {
		return 0, nil
	}
	return c.value, nil
}

// Decrement subtracts amount from key and returns the new value.
func (m *MemoryStore) Decrement(ctx context.Context, key string, amount int64) (int64, error) {
	return m.Increment(ctx, key, -amount, 0)
}

// Ping reports whether the store is open.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Cleanup removes expired keys and returns how many were deleted. It never
// fails; the error return satisfies Cleaner.
func (m *MemoryStore) Cleanup(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	deleted := 0
	for key, c := range m.counters {
		if !c.expiresAt.IsZero() && !now.Before(c.expiresAt) {
			delete(m.counters, key)
			deleted++
		}
	}
	return deleted, nil
}

// Size returns the current number of stored keys, including expired keys
// not yet purged.
func (m *MemoryStore) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}

// Close releases any resources held by the store.
// Close is idempotent.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.done)
	})
	return nil
}

// liveLocked returns the counter for key, dropping it if it has expired.
// Caller must hold the lock.
func (m *MemoryStore) liveLocked(key string, now time.Time) *counter {
	c, ok := m.counters[key]
	if !ok {
		return nil
	}
	if !c.expiresAt.IsZero() && !now.Before(c.expiresAt) {
		delete(m.counters, key)
		return nil
	}
	return c
}

// evictLocked evicts the key closest to expiry, preferring keys that expire
// over keys that never do.
// Caller must hold the lock.
func (m *MemoryStore) evictLocked() {
	var (
		victim   string
		soonest  time.Time
		foundTTL bool
		foundAny bool
	)

	for key, c := range m.counters {
		switch {
		case !c.expiresAt.IsZero() && (!foundTTL || c.expiresAt.Before(soonest)):
			victim, soonest, foundTTL, foundAny = key, c.expiresAt, true, true
		case !foundAny:
			victim, foundAny = key, true
		}
	}

	if foundAny {
		delete(m.counters, victim)
	}
}

// cleanupLoop runs periodic purges of expired keys.
func (m *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = m.Cleanup(context.Background())
		case <-m.done:
			return
		}
	}
}
