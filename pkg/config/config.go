package config

import "time"

// Config is the root configuration structure for Sentinel.
// It contains the limit settings for the Governor, the job registry, the
// optional shared counter store, the admin HTTP surface and telemetry.
type Config struct {
	// Limits contains rate limit, budget, circuit breaker and sweep settings.
	Limits LimitsConfig `yaml:"limits"`

	// Jobs contains job registry retention settings.
	Jobs JobsConfig `yaml:"jobs"`

	// Store selects the shared counter store used by the rate limiter and
	// the budget when several Sentinel processes must share their limits.
	Store StoreConfig `yaml:"store"`

	// Admin contains the admin HTTP server configuration.
	Admin AdminConfig `yaml:"admin"`

	// Telemetry contains logging, metrics, tracing and health settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Secrets configures ${secret:name} resolution.
	Secrets SecretsConfig `yaml:"secrets"`
}

// SecretsConfig configures where ${secret:name} references are looked up.
// Environment variables are tried before files.
type SecretsConfig struct {
	// EnvPrefix prefixes secret environment variables.
	// Default: "SENTINEL_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret. Empty disables file secrets.
	// Example: "/run/secrets"
	Dir string `yaml:"dir"`
}

// LimitsConfig groups the admission limits.
type LimitsConfig struct {
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Budget     BudgetConfig     `yaml:"budget"`
	Circuit    CircuitConfig    `yaml:"circuit"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Estimation EstimationConfig `yaml:"estimation"`
}

// RateLimitConfig configures the fixed-window rate limiter.
type RateLimitConfig struct {
	// MaxPerMinute is the number of calls admitted per window and key.
	// Zero or negative disables rate limiting.
	// Default: 60
	MaxPerMinute int `yaml:"max_per_minute"`

	// Window is the window length.
	// Default: 1m
	Window time.Duration `yaml:"window"`
}

// BudgetConfig configures the daily token budget.
type BudgetConfig struct {
	// MaxTokensPerDay is the daily token cap (UTC day).
	// Zero or negative disables the budget.
	// Default: 2000000
	MaxTokensPerDay int64 `yaml:"max_tokens_per_day"`

	// AlertThreshold is the usage fraction at which a warning is logged.
	// Default: 0.8
	AlertThreshold float64 `yaml:"alert_threshold"`

	// ReservationTTL auto-releases reservations older than this.
	// Default: 0 (disabled)
	ReservationTTL time.Duration `yaml:"reservation_ttl"`

	// StoreRetries is how many times commit and release are attempted
	// against the shared store.
	// Default: 3
	StoreRetries int `yaml:"store_retries"`

	// RetryBackoff is the base delay between store attempts.
	// Default: 50ms
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// CircuitConfig configures the per-target circuit breaker.
type CircuitConfig struct {
	// FailureThreshold is the failure count that opens a circuit.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// ResetTimeout is how long a circuit stays open before a trial call.
	// Default: 60s
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// FailureWindow is how long after the last failure an entry is forgotten.
	// Default: 5m
	FailureWindow time.Duration `yaml:"failure_window"`
}

// SweepConfig configures the periodic sweeper.
type SweepConfig struct {
	// Schedule is a cron expression (e.g. "*/5 * * * *" or "@every 5m").
	// Empty disables the sweeper; cleanup then happens lazily.
	// Default: ""
	Schedule string `yaml:"schedule"`
}

// EstimationConfig configures token estimation for calls that carry a
// prompt instead of an explicit estimate.
type EstimationConfig struct {
	// CharsPerToken maps a model name or prefix to its characters-per-token
	// ratio. The "default" key applies to unlisted models.
	// Default: {"default": 4.0}
	CharsPerToken map[string]float64 `yaml:"chars_per_token"`
}

// JobsConfig configures job retention.
type JobsConfig struct {
	// MaxJobs is the number of jobs kept before the oldest finished jobs
	// are evicted.
	// Default: 100
	MaxJobs int `yaml:"max_jobs"`

	// MaxAge is how long finished jobs are kept.
	// Default: 1h
	MaxAge time.Duration `yaml:"max_age"`

	// MaxRunning caps how many submitted jobs execute at once.
	// Default: 0 (no cap)
	MaxRunning int `yaml:"max_running"`
}

// StoreConfig selects the shared counter store.
type StoreConfig struct {
	// Backend is the store type.
	// Options: "none" (per-process limits), "memory", "sqlite", "redis",
	// "postgres"
	// Default: "none"
	Backend string `yaml:"backend"`

	// Memory contains in-process store settings.
	Memory MemoryStoreConfig `yaml:"memory"`

	// SQLite contains SQLite store settings.
	SQLite SQLiteStoreConfig `yaml:"sqlite"`

	// Redis contains Redis store settings.
	Redis RedisStoreConfig `yaml:"redis"`

	// Postgres contains PostgreSQL store settings.
	Postgres PostgresStoreConfig `yaml:"postgres"`
}

// MemoryStoreConfig configures the in-process counter store.
type MemoryStoreConfig struct {
	// MaxEntries is the maximum number of counters held.
	// Default: 100000
	MaxEntries int `yaml:"max_entries"`

	// CleanupInterval is how often expired counters are purged.
	// Default: 1m
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// SQLiteStoreConfig configures the SQLite counter store.
type SQLiteStoreConfig struct {
	// Path is the database file path.
	// Default: "data/sentinel.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait for the database lock.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// SnapshotInterval is how often the WAL is checkpointed and expired
	// counters are purged.
	// Default: 5m
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// RedisStoreConfig configures the Redis counter store.
type RedisStoreConfig struct {
	// Address is the Redis host:port.
	// Required when Backend is "redis".
	Address string `yaml:"address"`

	// Password is the Redis AUTH password.
	// This should typically be loaded from an environment variable.
	Password string `yaml:"password"`

	// DB is the Redis logical database.
	DB int `yaml:"db"`

	// KeyPrefix is prepended to every key.
	// Default: "sentinel:"
	KeyPrefix string `yaml:"key_prefix"`

	// DialTimeout bounds connection establishment.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// PostgresStoreConfig configures the PostgreSQL counter store.
type PostgresStoreConfig struct {
	// DSN is the connection string. It may be a ${secret:name} reference.
	// Required when Backend is "postgres".
	DSN string `yaml:"dsn"`

	// Table is the counter table, created on startup if missing.
	// Default: "sentinel_counters"
	Table string `yaml:"table"`

	// MaxConns caps the connection pool. Zero uses the pgx default.
	MaxConns int32 `yaml:"max_conns"`

	// ConnectTimeout bounds connection establishment.
	// Default: 5s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// AdminConfig configures the admin HTTP server serving metrics, health
// and read-only state snapshots.
type AdminConfig struct {
	// Enabled controls whether the admin server is started.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown, including waiting for
	// running jobs.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII enables redaction of API keys, tokens and emails in logs.
	// Default: true
	RedactPII *bool `yaml:"redact_pii"`

	// RedactPatterns contains custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "sentinel"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the OTLP connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the path for the liveness probe.
	// Default: "/health/live"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe.
	// Default: "/health/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout is the timeout for individual component checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// IsEnabled reports whether the admin server should run.
func (c AdminConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// IsEnabled reports whether metrics are collected.
func (c MetricsConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// ShouldRedact reports whether log redaction is on.
func (c LoggingConfig) ShouldRedact() bool { return c.RedactPII == nil || *c.RedactPII }
