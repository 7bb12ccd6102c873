package config

import "time"

// Default values for configuration fields.
const (
	// Limits defaults
	DefaultMaxPerMinute     = 60
	DefaultRateLimitWindow  = time.Minute
	DefaultMaxTokensPerDay  = int64(2_000_000)
	DefaultAlertThreshold   = 0.8
	DefaultStoreRetries     = 3
	DefaultRetryBackoff     = 50 * time.Millisecond
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 60 * time.Second
	DefaultFailureWindow    = 5 * time.Minute
	DefaultCharsPerToken    = 4.0

	// Jobs defaults
	DefaultMaxJobs   = 100
	DefaultJobMaxAge = time.Hour

	// Store defaults
	DefaultStoreBackend          = "none"
	DefaultMemoryMaxEntries      = 100_000
	DefaultMemoryCleanupInterval = time.Minute
	DefaultSQLitePath            = "data/sentinel.db"
	DefaultSQLiteBusyTimeout     = 5 * time.Second
	DefaultSQLiteSnapshot        = 5 * time.Minute
	DefaultRedisKeyPrefix        = "sentinel:"
	DefaultRedisDialTimeout      = 5 * time.Second
	DefaultPostgresTable         = "sentinel_counters"
	DefaultPostgresTimeout       = 5 * time.Second

	// Secrets defaults
	DefaultSecretsEnvPrefix = "SENTINEL_SECRET_"

	// Admin defaults
	DefaultAdminListenAddress = "127.0.0.1:9090"
	DefaultReadTimeout        = 10 * time.Second
	DefaultWriteTimeout       = 10 * time.Second
	DefaultShutdownTimeout    = 30 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultPrometheusPath      = "/metrics"
	DefaultTracingSampler      = "ratio"
	DefaultTracingSamplingRate = 1.0
	DefaultTracingServiceName  = "sentinel"
	DefaultTracingTimeout      = 10 * time.Second
	DefaultLivenessPath        = "/health/live"
	DefaultReadinessPath       = "/health/ready"
	DefaultHealthCheckTimeout  = 5 * time.Second
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
//
// Limits are only defaulted when left at zero; a negative limit in the file
// keeps that limit disabled.
func ApplyDefaults(cfg *Config) {
	applyLimitsDefaults(&cfg.Limits)

	if cfg.Jobs.MaxJobs == 0 {
		cfg.Jobs.MaxJobs = DefaultMaxJobs
	}
	if cfg.Jobs.MaxAge == 0 {
		cfg.Jobs.MaxAge = DefaultJobMaxAge
	}

	applyStoreDefaults(&cfg.Store)

	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}

	// Admin defaults
	if cfg.Admin.ListenAddress == "" {
		cfg.Admin.ListenAddress = DefaultAdminListenAddress
	}
	if cfg.Admin.ReadTimeout == 0 {
		cfg.Admin.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Admin.WriteTimeout == 0 {
		cfg.Admin.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Admin.ShutdownTimeout == 0 {
		cfg.Admin.ShutdownTimeout = DefaultShutdownTimeout
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyLimitsDefaults(cfg *LimitsConfig) {
	if cfg.RateLimit.MaxPerMinute == 0 {
		cfg.RateLimit.MaxPerMinute = DefaultMaxPerMinute
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = DefaultRateLimitWindow
	}

	if cfg.Budget.MaxTokensPerDay == 0 {
		cfg.Budget.MaxTokensPerDay = DefaultMaxTokensPerDay
	}
	if cfg.Budget.AlertThreshold == 0 {
		cfg.Budget.AlertThreshold = DefaultAlertThreshold
	}
	if cfg.Budget.StoreRetries == 0 {
		cfg.Budget.StoreRetries = DefaultStoreRetries
	}
	if cfg.Budget.RetryBackoff == 0 {
		cfg.Budget.RetryBackoff = DefaultRetryBackoff
	}

	if cfg.Circuit.FailureThreshold == 0 {
		cfg.Circuit.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Circuit.ResetTimeout == 0 {
		cfg.Circuit.ResetTimeout = DefaultResetTimeout
	}
	if cfg.Circuit.FailureWindow == 0 {
		cfg.Circuit.FailureWindow = DefaultFailureWindow
	}

	if len(cfg.Estimation.CharsPerToken) == 0 {
		cfg.Estimation.CharsPerToken = map[string]float64{"default": DefaultCharsPerToken}
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultStoreBackend
	}
	if cfg.Memory.MaxEntries == 0 {
		cfg.Memory.MaxEntries = DefaultMemoryMaxEntries
	}
	if cfg.Memory.CleanupInterval == 0 {
		cfg.Memory.CleanupInterval = DefaultMemoryCleanupInterval
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultSQLitePath
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.SQLite.SnapshotInterval == 0 {
		cfg.SQLite.SnapshotInterval = DefaultSQLiteSnapshot
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if cfg.Postgres.Table == "" {
		cfg.Postgres.Table = DefaultPostgresTable
	}
	if cfg.Postgres.ConnectTimeout == 0 {
		cfg.Postgres.ConnectTimeout = DefaultPostgresTimeout
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultPrometheusPath
	}

	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}

	if cfg.Health.LivenessPath == "" {
		cfg.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

// NewDefaultConfig returns a configuration with every default applied.
// It is what `sentinel run` uses when no configuration file exists.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
