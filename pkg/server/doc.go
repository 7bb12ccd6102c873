// Package server implements Sentinel's admin HTTP API.
//
// Routes:
//
//	GET    /v1/budget           today's budget status
//	GET    /v1/ratelimit        rate limit windows (?key= for one key)
//	GET    /v1/circuits         circuit breaker stats
//	POST   /v1/circuits/reset   close one circuit (?key=) or all
//	GET    /v1/jobs             job summaries (?status= filter)
//	GET    /v1/jobs/{id}        one job with its result
//	DELETE /v1/jobs/{id}        cancel a pending or running job
//	GET    /version             build information
//
// The metrics and health endpoints are mounted at their configured paths.
// Every request gets an X-Request-ID, a server span and a log line.
package server
