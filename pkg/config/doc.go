// Package config provides configuration management for Sentinel.
//
// This package handles loading, validating, and reloading configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in three ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("sentinel.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("sentinel.yaml")
//
//  3. From defaults and the environment alone:
//     cfg, err := config.FromEnv()
//
// ${VAR} references inside the file are expanded before parsing, which keeps
// secrets such as the Redis password out of the file.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention SENTINEL_SECTION_FIELD:
//
//   - SENTINEL_LIMITS_RATE_LIMIT_MAX_PER_MINUTE overrides limits.rate_limit.max_per_minute
//   - SENTINEL_LIMITS_BUDGET_MAX_TOKENS_PER_DAY overrides limits.budget.max_tokens_per_day
//   - SENTINEL_STORE_REDIS_ADDRESS overrides store.redis.address
//   - SENTINEL_STORE_POSTGRES_DSN overrides store.postgres.dsn
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Live Reload
//
// Watcher watches the file with fsnotify and passes each valid new
// configuration to a callback. `sentinel run` uses it to apply new rate and
// budget caps to the running Governor without a restart.
//
// # Example Configuration
//
//	limits:
//	  rate_limit:
//	    max_per_minute: 60
//	  budget:
//	    max_tokens_per_day: 2000000
//	    reservation_ttl: 30m
//	  circuit:
//	    failure_threshold: 5
//	    reset_timeout: 60s
//	  sweep:
//	    schedule: "@every 5m"
//
//	store:
//	  backend: redis
//	  redis:
//	    address: "localhost:6379"
//	    password: "${REDIS_PASSWORD}"
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
package config
