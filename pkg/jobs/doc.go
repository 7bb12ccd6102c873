// Package jobs runs long operations in the background and tracks them in
// memory so callers can start work, disconnect and poll later.
//
// # Lifecycle
//
//	pending -> running -> completed | failed
//	pending | running -> cancelled
//
// A task that returns an error or panics leaves its job failed. Cancelling
// is bookkeeping: the job is marked cancelled at once, the task keeps
// running, and whatever it returns is discarded.
//
// # Eviction
//
// Finished jobs are evicted lazily on Create and List: first those older
// than MaxAge, then the oldest until at most MaxJobs remain. Pending and
// running jobs are never evicted, so the registry can exceed MaxJobs while
// many jobs are in flight.
package jobs
