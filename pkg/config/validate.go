package config

import (
	"fmt"
	"maps"
	"net"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "admin.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateJobs(&cfg.Jobs)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateAdmin(&cfg.Admin)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	if cfg.RateLimit.MaxPerMinute > 0 && cfg.RateLimit.Window <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.rate_limit.window",
			Message: "window must be positive",
		})
	}

	if cfg.Budget.AlertThreshold < 0 || cfg.Budget.AlertThreshold > 1 {
		errs = append(errs, FieldError{
			Field:   "limits.budget.alert_threshold",
			Message: "alert threshold must be between 0.0 and 1.0",
		})
	}
	if cfg.Budget.ReservationTTL < 0 {
		errs = append(errs, FieldError{
			Field:   "limits.budget.reservation_ttl",
			Message: "reservation TTL must be non-negative",
		})
	}
	if cfg.Budget.StoreRetries < 1 {
		errs = append(errs, FieldError{
			Field:   "limits.budget.store_retries",
			Message: "store retries must be at least 1",
		})
	}
	if cfg.Budget.RetryBackoff < 0 {
		errs = append(errs, FieldError{
			Field:   "limits.budget.retry_backoff",
			Message: "retry backoff must be non-negative",
		})
	}

	if cfg.Circuit.FailureThreshold < 1 {
		errs = append(errs, FieldError{
			Field:   "limits.circuit.failure_threshold",
			Message: "failure threshold must be at least 1",
		})
	}
	if cfg.Circuit.ResetTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.circuit.reset_timeout",
			Message: "reset timeout must be positive",
		})
	}
	if cfg.Circuit.FailureWindow <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.circuit.failure_window",
			Message: "failure window must be positive",
		})
	}

	for _, model := range slices.Sorted(maps.Keys(cfg.Estimation.CharsPerToken)) {
		if cfg.Estimation.CharsPerToken[model] <= 0 {
			errs = append(errs, FieldError{
				Field:   "limits.estimation.chars_per_token." + model,
				Message: "ratio must be positive",
			})
		}
	}

	if cfg.Sweep.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Sweep.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "limits.sweep.schedule",
				Message: fmt.Sprintf("invalid cron schedule %q: %v", cfg.Sweep.Schedule, err),
			})
		}
	}

	return errs
}

func validateJobs(cfg *JobsConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxJobs < 1 {
		errs = append(errs, FieldError{
			Field:   "jobs.max_jobs",
			Message: "max jobs must be at least 1",
		})
	}
	if cfg.MaxAge <= 0 {
		errs = append(errs, FieldError{
			Field:   "jobs.max_age",
			Message: "max age must be positive",
		})
	}
	if cfg.MaxRunning < 0 {
		errs = append(errs, FieldError{
			Field:   "jobs.max_running",
			Message: "max running cannot be negative",
		})
	}

	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "none", "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.path",
				Message: "path is required for the sqlite backend",
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.busy_timeout",
				Message: "busy timeout must be non-negative",
			})
		}
	case "redis":
		if cfg.Redis.Address == "" {
			errs = append(errs, FieldError{
				Field:   "store.redis.address",
				Message: "address is required for the redis backend",
			})
		} else if _, _, err := net.SplitHostPort(cfg.Redis.Address); err != nil {
			errs = append(errs, FieldError{
				Field:   "store.redis.address",
				Message: fmt.Sprintf("invalid address %q: must be host:port", cfg.Redis.Address),
			})
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, FieldError{
				Field:   "store.redis.db",
				Message: "db must be non-negative",
			})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{
				Field:   "store.postgres.dsn",
				Message: "dsn is required for the postgres backend",
			})
		}
		if cfg.Postgres.Table != "" && !validTableName(cfg.Postgres.Table) {
			errs = append(errs, FieldError{
				Field:   "store.postgres.table",
				Message: fmt.Sprintf("invalid table name %q: use letters, digits and underscores", cfg.Postgres.Table),
			})
		}
		if cfg.Postgres.MaxConns < 0 {
			errs = append(errs, FieldError{
				Field:   "store.postgres.max_conns",
				Message: "max conns must be non-negative",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'none', 'memory', 'sqlite', 'redis', or 'postgres'", cfg.Backend),
		})
	}

	if cfg.Memory.MaxEntries < 0 {
		errs = append(errs, FieldError{
			Field:   "store.memory.max_entries",
			Message: "max entries must be non-negative",
		})
	}

	return errs
}

func validTableName(name string) bool {
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return len(name) <= 63
}

func validateAdmin(cfg *AdminConfig) []FieldError {
	var errs []FieldError

	if !cfg.IsEnabled() {
		return nil
	}

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "admin.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "admin.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: must be host:port", cfg.ListenAddress),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "admin.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "admin.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "admin.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text', or 'console'", cfg.Logging.Format),
		})
	}

	for i, p := range cfg.Logging.RedactPatterns {
		if p.Pattern == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: "pattern is required",
			})
		}
	}

	if cfg.Metrics.IsEnabled() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	paths := []struct{ field, path string }{
		{"telemetry.health.liveness_path", cfg.Health.LivenessPath},
		{"telemetry.health.readiness_path", cfg.Health.ReadinessPath},
	}
	for _, p := range paths {
		if !strings.HasPrefix(p.path, "/") {
			errs = append(errs, FieldError{
				Field:   p.field,
				Message: "path must start with /",
			})
		}
	}

	return errs
}
