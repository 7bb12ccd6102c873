// Sentinel guards outbound calls to rate-limited, token-metered backends.
//
// It runs a per-minute rate limit, a daily token budget and a per-call
// circuit breaker in front of every call, and tracks long calls as
// background jobs. The sentinel binary hosts the governor together with its
// admin API.
//
// Usage:
//
//	# Start with a configuration file
//	sentinel run --config sentinel.yaml
//
//	# Start from SENTINEL_* environment variables only
//	sentinel run
//
//	# Check a configuration file
//	sentinel validate --config sentinel.yaml
//
//	# Show budget and circuits of a running instance
//	sentinel status --addr 127.0.0.1:9090
package main

func main() {
	Execute()
}
