package config

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/sentinel/pkg/secrets"
)

// ResolveSecrets replaces ${secret:name} references in secret-bearing
// fields with values from the environment and the secrets directory.
func (c *Config) ResolveSecrets(ctx context.Context, logger *slog.Logger) error {
	providers := []secrets.Provider{secrets.NewEnvProvider(c.Secrets.EnvPrefix)}
	if c.Secrets.Dir != "" {
		files, err := secrets.NewFileProvider(c.Secrets.Dir)
		if err != nil {
			return fmt.Errorf("secrets.dir: %w", err)
		}
		providers = append(providers, files)
	}
	resolver := secrets.NewResolver(logger, providers...)

	password, err := resolver.Resolve(ctx, c.Store.Redis.Password)
	if err != nil {
		return fmt.Errorf("store.redis.password: %w", err)
	}
	c.Store.Redis.Password = password

	dsn, err := resolver.Resolve(ctx, c.Store.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("store.postgres.dsn: %w", err)
	}
	c.Store.Postgres.DSN = dsn
	return nil
}
