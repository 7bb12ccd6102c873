// Package health provides liveness and readiness probes for the admin
// server.
//
// Liveness always succeeds while the process is serving. Readiness runs the
// registered checks concurrently, each bounded by a timeout; `sentinel run`
// registers the shared counter store's Ping so that an unreachable Redis or
// SQLite store marks the instance degraded.
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("store", health.PingCheck(store))
//	checker.Register(mux, "/health/live", "/health/ready")
package health
