// Package ratelimit bounds request throughput with a fixed 60-second window.
//
// # Overview
//
// A Limiter keeps one counting window per key. The first request for a key
// opens its window; requests are admitted until the window holds
// MaxPerMinute of them, after which Check returns an *ExceededError until
// the window ends:
//
//	limiter := ratelimit.NewLimiter(ratelimit.Config{MaxPerMinute: 60})
//	if err := limiter.Check(ctx, ""); err != nil {
//	    var exceeded *ratelimit.ExceededError
//	    if errors.As(err, &exceeded) {
//	        retryIn := exceeded.RetryAfter
//	    }
//	}
//
// An empty key maps to the "global" key. A fixed window allows up to twice
// the limit across a window boundary; this is accepted.
//
// # Shared Store
//
// With Config.Store set, counts live in a storage.CounterStore under
// "ratelimit:<key>:<slot>", where slot is the epoch-aligned window index, so
// several processes share one limit. When the store fails the limiter fails
// open: the request is admitted, a warning is logged and OnStoreError is
// called. The budget tracker makes the opposite choice.
//
// # Thread Safety
//
// All Limiter methods are safe for concurrent use.
package ratelimit
