// Package telemetry groups Sentinel's observability packages.
//
//   - logging: slog handlers with secret redaction and context fields
//   - metrics: Prometheus registry, admin API metrics, scrape handler
//   - tracing: OpenTelemetry provider and HTTP propagation
//   - health: liveness and readiness checks
//
// Each subpackage is configured from the telemetry section of the config
// file and wired together in cmd/sentinel.
package telemetry
