package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements CounterStore on a PostgreSQL table. Like
// RedisStore it serves Sentinel instances on several hosts, and counters
// survive restarts of the database.
//
// Every operation is a single statement, so atomicity comes from the row
// lock taken by INSERT ... ON CONFLICT. Expiry uses the database clock.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
	owned bool
}

// PostgresOption configures PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTable sets the counter table name (default "sentinel_counters").
func WithTable(name string) PostgresOption {
	return func(s *PostgresStore) { s.table = name }
}

// NewPostgresStore creates a store on an existing pool. The caller keeps
// ownership of the pool; call EnsureSchema before first use.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		pool:  pool,
		table: "sentinel_counters",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PostgresStoreConfig configures a store created from a connection string.
type PostgresStoreConfig struct {
	// DSN is a PostgreSQL URL or key=value connection string.
	DSN string

	// Table is the counter table name.
	// Default: "sentinel_counters"
	Table string

	// MaxConns caps the pool size.
	// Default: pgxpool's default
	MaxConns int32

	// ConnectTimeout bounds connection establishment.
	// Default: 5 seconds
	ConnectTimeout time.Duration
}

// NewPostgresStoreWithConfig connects, verifies the connection and creates
// the counter table. Closing the store closes the pool.
func NewPostgresStoreWithConfig(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	var opts []PostgresOption
	if cfg.Table != "" {
		opts = append(opts, WithTable(cfg.Table))
	}
	s := NewPostgresStore(pool, opts...)
	s.owned = true

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

// EnsureSchema creates the counter table if it does not exist.
// expires_at NULL means the counter never expires.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			key TEXT PRIMARY KEY,
			value BIGINT NOT NULL DEFAULT 0,
			expires_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (expires_at);
	`, s.ident(), pgx.Identifier{s.table + "_expires_at_idx"}.Sanitize())

	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("sentinel/postgres: ensure schema: %w", err)
	}
	return nil
}

// Increment adds amount to key and returns the new value. An expired row is
// replaced as if the key did not exist.
func (s *PostgresStore) Increment(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	var ttlMs int64
	if ttl > 0 {
		ttlMs = max(ttl.Milliseconds(), 1)
	}

	q := fmt.Sprintf(`
		INSERT INTO %[1]s AS c (key, value, expires_at)
		VALUES ($1, $2, CASE WHEN $3::bigint > 0 THEN now() + $3::bigint * interval '1 millisecond' END)
		ON CONFLICT (key) DO UPDATE SET
			value = CASE WHEN c.expires_at IS NOT NULL AND c.expires_at <= now()
				THEN excluded.value ELSE c.value + excluded.value END,
			expires_at = CASE WHEN c.expires_at IS NOT NULL AND c.expires_at <= now()
				THEN excluded.expires_at ELSE c.expires_at END
		RETURNING value
	`, s.ident())

	var value int64
	if err := s.pool.QueryRow(ctx, q, key, amount, ttlMs).Scan(&value); err != nil {
		return 0, fmt.Errorf("sentinel/postgres: increment: %w", err)
	}
	return value, nil
}

// Get returns the current value of key.
func (s *PostgresStore) Get(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	q := fmt.Sprintf(`
		SELECT value FROM %s
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())
	`, s.ident())

	var value int64
	err := s.pool.QueryRow(ctx, q, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sentinel/postgres: get: %w", err)
	}
	return value, nil
}

// Decrement subtracts amount from key and returns the new value.
func (s *PostgresStore) Decrement(ctx context.Context, key string, amount int64) (int64, error) {
	return s.Increment(ctx, key, -amount, 0)
}

// Cleanup deletes expired counters and returns how many were removed.
func (s *PostgresStore) Cleanup(ctx context.Context) (int, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= now()`, s.ident())

	tag, err := s.pool.Exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("sentinel/postgres: cleanup: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping verifies PostgreSQL is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool when the store created it.
func (s *PostgresStore) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}
