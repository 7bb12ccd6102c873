// Package metrics exposes Sentinel's Prometheus registry over HTTP.
//
// The governor's own metrics (rate limit decisions, budget usage, circuit
// transitions, jobs) are defined in package limits and registered on the
// registry returned by NewRegistry. This package adds the admin API
// request metrics and the scrape handler.
//
//	reg := metrics.NewRegistry()
//	m := limits.NewMetrics(reg)
//	mux.Handle("/metrics", metrics.Handler(reg))
package metrics
