package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
limits:
  rate_limit:
    max_per_minute: 30
  budget:
    max_tokens_per_day: 500000
    reservation_ttl: "15m"
  circuit:
    failure_threshold: 3
  sweep:
    schedule: "@every 5m"

jobs:
  max_jobs: 50

store:
  backend: "sqlite"
  sqlite:
    path: "./counters.db"

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Limits.RateLimit.MaxPerMinute != 30 {
		t.Errorf("expected max per minute 30, got %d", cfg.Limits.RateLimit.MaxPerMinute)
	}
	if cfg.Limits.Budget.MaxTokensPerDay != 500000 {
		t.Errorf("expected max tokens 500000, got %d", cfg.Limits.Budget.MaxTokensPerDay)
	}
	if cfg.Limits.Budget.ReservationTTL != 15*time.Minute {
		t.Errorf("expected reservation TTL 15m, got %v", cfg.Limits.Budget.ReservationTTL)
	}
	if cfg.Limits.Circuit.FailureThreshold != 3 {
		t.Errorf("expected failure threshold 3, got %d", cfg.Limits.Circuit.FailureThreshold)
	}
	if cfg.Limits.Circuit.ResetTimeout != DefaultResetTimeout {
		t.Errorf("expected default reset timeout, got %v", cfg.Limits.Circuit.ResetTimeout)
	}
	if cfg.Store.SQLite.Path != "./counters.db" {
		t.Errorf("expected sqlite path ./counters.db, got %q", cfg.Store.SQLite.Path)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level debug, got %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_REDIS_PASSWORD", "s3cret")
	path := writeConfig(t, `
store:
  backend: redis
  redis:
    address: "localhost:6379"
    password: "${TEST_REDIS_PASSWORD}"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Store.Redis.Password != "s3cret" {
		t.Errorf("expected expanded password, got %q", cfg.Store.Redis.Password)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "limits: [unclosed")

	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: "cassandra"
`)

	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "store.backend") {
		t.Errorf("expected store.backend validation error, got %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
limits:
  rate_limit:
    max_per_minute: 30
`)

	t.Setenv("SENTINEL_LIMITS_RATE_LIMIT_MAX_PER_MINUTE", "90")
	t.Setenv("SENTINEL_LIMITS_BUDGET_MAX_TOKENS_PER_DAY", "123456")
	t.Setenv("SENTINEL_LIMITS_CIRCUIT_RESET_TIMEOUT", "2m")
	t.Setenv("SENTINEL_ADMIN_ENABLED", "false")
	t.Setenv("SENTINEL_TELEMETRY_LOGGING_LEVEL", "warn")
	t.Setenv("SENTINEL_JOBS_MAX_JOBS", "not-a-number")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Limits.RateLimit.MaxPerMinute != 90 {
		t.Errorf("expected env override 90, got %d", cfg.Limits.RateLimit.MaxPerMinute)
	}
	if cfg.Limits.Budget.MaxTokensPerDay != 123456 {
		t.Errorf("expected env override 123456, got %d", cfg.Limits.Budget.MaxTokensPerDay)
	}
	if cfg.Limits.Circuit.ResetTimeout != 2*time.Minute {
		t.Errorf("expected reset timeout 2m, got %v", cfg.Limits.Circuit.ResetTimeout)
	}
	if cfg.Admin.IsEnabled() {
		t.Error("expected admin disabled by env")
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected level warn, got %q", cfg.Telemetry.Logging.Level)
	}
	if cfg.Jobs.MaxJobs != DefaultMaxJobs {
		t.Errorf("expected unparseable override ignored, got %d", cfg.Jobs.MaxJobs)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidAfterOverride(t *testing.T) {
	path := writeConfig(t, "{}")
	t.Setenv("SENTINEL_STORE_BACKEND", "redis")

	_, err := LoadConfigWithEnvOverrides(path)
	if err == nil || !strings.Contains(err.Error(), "after environment overrides") {
		t.Errorf("expected validation error after overrides, got %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SENTINEL_STORE_BACKEND", "memory")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("expected backend memory, got %q", cfg.Store.Backend)
	}
	if cfg.Admin.ListenAddress != DefaultAdminListenAddress {
		t.Errorf("expected default listen address, got %q", cfg.Admin.ListenAddress)
	}
}
