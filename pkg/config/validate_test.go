package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Jobs.MaxJobs = -1
	cfg.Telemetry.Logging.Level = "verbose"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation to fail")
	}

	var validationErr ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(validationErr.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d", len(validationErr.Errors))
	}
	if !strings.Contains(validationErr.Error(), "validation failed with 2 errors") {
		t.Errorf("error message should mention multiple errors: %s", validationErr.Error())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*Config)
		errorField string
	}{
		{
			name:   "defaults",
			modify: func(*Config) {},
		},
		{
			name:   "disabled limits",
			modify: func(c *Config) { c.Limits.RateLimit.MaxPerMinute = -1; c.Limits.Budget.MaxTokensPerDay = -1 },
		},
		{
			name:       "zero rate window",
			modify:     func(c *Config) { c.Limits.RateLimit.Window = -1 },
			errorField: "limits.rate_limit.window",
		},
		{
			name:       "alert threshold above one",
			modify:     func(c *Config) { c.Limits.Budget.AlertThreshold = 1.5 },
			errorField: "limits.budget.alert_threshold",
		},
		{
			name:       "negative reservation ttl",
			modify:     func(c *Config) { c.Limits.Budget.ReservationTTL = -1 },
			errorField: "limits.budget.reservation_ttl",
		},
		{
			name:       "negative failure threshold",
			modify:     func(c *Config) { c.Limits.Circuit.FailureThreshold = -2 },
			errorField: "limits.circuit.failure_threshold",
		},
		{
			name:       "bad sweep schedule",
			modify:     func(c *Config) { c.Limits.Sweep.Schedule = "every five minutes" },
			errorField: "limits.sweep.schedule",
		},
		{
			name:       "zero chars per token",
			modify:     func(c *Config) { c.Limits.Estimation.CharsPerToken["claude"] = 0 },
			errorField: "limits.estimation.chars_per_token.claude",
		},
		{
			name:       "negative max running",
			modify:     func(c *Config) { c.Jobs.MaxRunning = -1 },
			errorField: "jobs.max_running",
		},
		{
			name:   "valid sweep schedule",
			modify: func(c *Config) { c.Limits.Sweep.Schedule = "*/5 * * * *" },
		},
		{
			name:       "postgres without dsn",
			modify:     func(c *Config) { c.Store.Backend = "postgres" },
			errorField: "store.postgres.dsn",
		},
		{
			name: "postgres bad table",
			modify: func(c *Config) {
				c.Store.Backend = "postgres"
				c.Store.Postgres.DSN = "postgres://localhost/sentinel"
				c.Store.Postgres.Table = "counters; drop"
			},
			errorField: "store.postgres.table",
		},
		{
			name: "valid postgres",
			modify: func(c *Config) {
				c.Store.Backend = "postgres"
				c.Store.Postgres.DSN = "postgres://localhost/sentinel"
			},
		},
		{
			name:       "redis without address",
			modify:     func(c *Config) { c.Store.Backend = "redis" },
			errorField: "store.redis.address",
		},
		{
			name: "redis address without port",
			modify: func(c *Config) {
				c.Store.Backend = "redis"
				c.Store.Redis.Address = "localhost"
			},
			errorField: "store.redis.address",
		},
		{
			name:       "unknown backend",
			modify:     func(c *Config) { c.Store.Backend = "dynamo" },
			errorField: "store.backend",
		},
		{
			name:       "bad admin address",
			modify:     func(c *Config) { c.Admin.ListenAddress = "9090" },
			errorField: "admin.listen_address",
		},
		{
			name: "admin disabled skips address",
			modify: func(c *Config) {
				off := false
				c.Admin.Enabled = &off
				c.Admin.ListenAddress = "9090"
			},
		},
		{
			name:       "bad log format",
			modify:     func(c *Config) { c.Telemetry.Logging.Format = "xml" },
			errorField: "telemetry.logging.format",
		},
		{
			name:       "tracing without endpoint",
			modify:     func(c *Config) { c.Telemetry.Tracing.Enabled = true },
			errorField: "telemetry.tracing.endpoint",
		},
		{
			name:       "metrics path without slash",
			modify:     func(c *Config) { c.Telemetry.Metrics.Path = "metrics" },
			errorField: "telemetry.metrics.path",
		},
		{
			name:       "readiness path without slash",
			modify:     func(c *Config) { c.Telemetry.Health.ReadinessPath = "ready" },
			errorField: "telemetry.health.readiness_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.modify(cfg)

			err := Validate(cfg)
			if tt.errorField == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}

			var validationErr ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, fe := range validationErr.Errors {
				if fe.Field == tt.errorField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error for field %q, got %v", tt.errorField, err)
			}
		})
	}
}
