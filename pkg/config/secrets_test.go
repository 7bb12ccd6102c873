package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveSecrets(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "redis-password"), []byte("from-file\n"), 0o600); err != nil {
		t.Fatalf("failed to write secret: %v", err)
	}

	t.Run("file", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Secrets.Dir = dir
		cfg.Store.Redis.Password = "${secret:redis-password}"

		if err := cfg.ResolveSecrets(context.Background(), nil); err != nil {
			t.Fatalf("ResolveSecrets() error = %v", err)
		}
		if cfg.Store.Redis.Password != "from-file" {
			t.Errorf("password = %q, want %q", cfg.Store.Redis.Password, "from-file")
		}
	})

	t.Run("env wins", func(t *testing.T) {
		t.Setenv("SENTINEL_SECRET_REDIS_PASSWORD", "from-env")
		cfg := NewDefaultConfig()
		cfg.Secrets.Dir = dir
		cfg.Store.Redis.Password = "${secret:redis-password}"

		if err := cfg.ResolveSecrets(context.Background(), nil); err != nil {
			t.Fatalf("ResolveSecrets() error = %v", err)
		}
		if cfg.Store.Redis.Password != "from-env" {
			t.Errorf("password = %q, want %q", cfg.Store.Redis.Password, "from-env")
		}
	})

	t.Run("literal untouched", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Store.Redis.Password = "plain"
		if err := cfg.ResolveSecrets(context.Background(), nil); err != nil {
			t.Fatalf("ResolveSecrets() error = %v", err)
		}
		if cfg.Store.Redis.Password != "plain" {
			t.Errorf("password = %q", cfg.Store.Redis.Password)
		}
	})

	t.Run("postgres dsn", func(t *testing.T) {
		t.Setenv("SENTINEL_SECRET_PG_DSN", "postgres://sentinel:pw@db/sentinel")
		cfg := NewDefaultConfig()
		cfg.Store.Postgres.DSN = "${secret:pg-dsn}"

		if err := cfg.ResolveSecrets(context.Background(), nil); err != nil {
			t.Fatalf("ResolveSecrets() error = %v", err)
		}
		if cfg.Store.Postgres.DSN != "postgres://sentinel:pw@db/sentinel" {
			t.Errorf("dsn = %q", cfg.Store.Postgres.DSN)
		}
	})

	t.Run("missing", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Store.Redis.Password = "${secret:nope}"
		if err := cfg.ResolveSecrets(context.Background(), nil); err == nil {
			t.Error("expected error for missing secret")
		}
	})

	t.Run("bad dir", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Secrets.Dir = filepath.Join(dir, "missing")
		if err := cfg.ResolveSecrets(context.Background(), nil); err == nil {
			t.Error("expected error for missing secrets dir")
		}
	})
}
