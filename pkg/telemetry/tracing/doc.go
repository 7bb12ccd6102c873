// Package tracing sets up OpenTelemetry for Sentinel.
//
// New returns a Tracer whose Tracer() is passed to limits.WithTracer. The
// Governor then records a "sentinel.execute" span per governed call and a
// "sentinel.job" span per background job. With tracing disabled the tracer
// is a noop.
//
// Configuration:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: "localhost:4317"
//	    insecure: true
//	    sampler: ratio      # always, never, ratio
//	    sample_ratio: 0.1
//
// All samplers are parent-based.
package tracing
