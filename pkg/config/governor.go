package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"mercator-hq/sentinel/pkg/jobs"
	"mercator-hq/sentinel/pkg/limits"
	"mercator-hq/sentinel/pkg/limits/budget"
	"mercator-hq/sentinel/pkg/limits/circuit"
	"mercator-hq/sentinel/pkg/limits/ratelimit"
	"mercator-hq/sentinel/pkg/limits/storage"
)

// GovernorConfig converts the limits and jobs sections into the Governor's
// component configuration.
func (c *Config) GovernorConfig() limits.Config {
	return limits.Config{
		RateLimit: ratelimit.Config{
			MaxPerMinute: c.Limits.RateLimit.MaxPerMinute,
			Window:       c.Limits.RateLimit.Window,
		},
		Budget: budget.Config{
			MaxTokensPerDay: c.Limits.Budget.MaxTokensPerDay,
			AlertThreshold:  c.Limits.Budget.AlertThreshold,
			ReservationTTL:  c.Limits.Budget.ReservationTTL,
			StoreRetries:    c.Limits.Budget.StoreRetries,
			RetryBackoff:    c.Limits.Budget.RetryBackoff,
		},
		Circuit: circuit.Config{
			FailureThreshold: c.Limits.Circuit.FailureThreshold,
			ResetTimeout:     c.Limits.Circuit.ResetTimeout,
			FailureWindow:    c.Limits.Circuit.FailureWindow,
		},
		Jobs: jobs.Config{
			MaxJobs: c.Jobs.MaxJobs,
			MaxAge:  c.Jobs.MaxAge,
		},
		MaxRunningJobs: c.Jobs.MaxRunning,
	}
}

// OpenStore creates the configured shared counter store. It returns nil
// when the backend is "none".
func (c StoreConfig) OpenStore(ctx context.Context) (storage.CounterStore, error) {
	switch c.Backend {
	case "", "none":
		return nil, nil

	case "memory":
		return storage.NewMemoryStoreWithConfig(storage.MemoryStoreConfig{
			MaxEntries:      c.Memory.MaxEntries,
			CleanupInterval: c.Memory.CleanupInterval,
		}), nil

	case "sqlite":
		if dir := filepath.Dir(c.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		store, err := storage.NewSQLiteStoreWithConfig(storage.SQLiteStoreConfig{
			DBPath:           c.SQLite.Path,
			BusyTimeout:      c.SQLite.BusyTimeout,
			SnapshotInterval: c.SQLite.SnapshotInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil

	case "redis":
		store, err := storage.NewRedisStoreWithConfig(ctx, storage.RedisStoreConfig{
			Addr:        c.Redis.Address,
			Password:    c.Redis.Password,
			DB:          c.Redis.DB,
			KeyPrefix:   c.Redis.KeyPrefix,
			DialTimeout: c.Redis.DialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open redis store: %w", err)
		}
		return store, nil

	case "postgres":
		store, err := storage.NewPostgresStoreWithConfig(ctx, storage.PostgresStoreConfig{
			DSN:            c.Postgres.DSN,
			Table:          c.Postgres.Table,
			MaxConns:       c.Postgres.MaxConns,
			ConnectTimeout: c.Postgres.ConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", c.Backend)
	}
}
