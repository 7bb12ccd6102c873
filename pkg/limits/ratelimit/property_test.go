package ratelimit

import (
	"context"
	"testing"

	"pgregory.net/rapid"
)

func TestProperty_WindowAdmitsExactlyLimit(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 20).Draw(rt, "limit")
		checks := rapid.IntRange(0, 50).Draw(rt, "checks")
		key := rapid.SampledFrom([]string{"", "global", "user-1", "review"}).Draw(rt, "key")

		clock := newFakeClock()
		limiter := NewLimiter(Config{MaxPerMinute: limit, Clock: clock.Now})
		ctx := context.Background()

		admitted := 0
		for i := 0; i < checks; i++ {
			if limiter.Check(ctx, key) == nil {
				admitted++
			}
		}
		if want := min(checks, limit); admitted != want {
			rt.Fatalf("admitted %d of %d checks with limit %d, want %d", admitted, checks, limit, want)
		}

		clock.Advance(DefaultWindow + 1)
		if err := limiter.Check(ctx, key); err != nil {
			rt.Fatalf("check after rollover rejected: %v", err)
		}
	})
}
