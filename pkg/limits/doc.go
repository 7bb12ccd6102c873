// Package limits is the admission-control core that every outbound backend
// call passes through.
//
// # Overview
//
// A Governor owns four components and applies them in a fixed order:
//
//   - ratelimit: fixed 60-second windows per key
//   - budget: daily token budget with reserve, commit and release
//   - circuit: per-target circuit breaker
//   - jobs (package mercator-hq/sentinel/pkg/jobs): background job registry
//
// Counters can be shared between processes through a storage.CounterStore
// (memory, SQLite or Redis). Without one every component keeps its state in
// process memory and loses it on restart.
//
// # Usage
//
//	gov := limits.NewGovernor(cfg, limits.WithMetrics(limits.NewMetrics(prometheus.DefaultRegisterer)))
//
//	// Synchronous
//	result, err := gov.Execute(ctx, call, fn)
//	var limitErr *limits.LimitError
//	if errors.As(err, &limitErr) {
//	    // rejected by limitErr.Type; retry after limitErr.RetryAfter
//	}
//
//	// Asynchronous
//	id, err := gov.Submit(ctx, call, fn)
//	job, err := gov.Jobs().Wait(ctx, id, 30*time.Second)
//
// # Failure Modes
//
// With a shared store, the rate limiter fails open and the budget fails
// closed. A store outage therefore never blocks calls on rate limits but
// does stop new reservations.
//
// # Thread Safety
//
// All operations are safe for concurrent use. Each component serializes
// check-and-update on its own mutex.
package limits
