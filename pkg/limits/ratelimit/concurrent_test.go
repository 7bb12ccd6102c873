package ratelimit

import (
	"sync"
	"testing"
)

func TestConcurrencyLimiter_AcquireRelease(t *testing.T) {
	cl := NewConcurrencyLimiter(2)

	if !cl.Acquire() || !cl.Acquire() {
		t.Fatal("Expected first two acquires to succeed")
	}
	if !cl.Full() {
		t.Error("Expected limiter to be full")
	}
	if cl.Acquire() {
		t.Fatal("Expected third acquire to fail")
	}
	if cl.InFlight() != 2 {
		t.Errorf("Expected 2 in flight, got %d", cl.InFlight())
	}

	cl.Release()
	if !cl.Acquire() {
		t.Error("Expected acquire after release to succeed")
	}
}

func TestConcurrencyLimiter_Disabled(t *testing.T) {
	cl := NewConcurrencyLimiter(0)
	for i := 0; i < 100; i++ {
		if !cl.Acquire() {
			t.Fatalf("Acquire %d failed with limiter disabled", i)
		}
	}
	if cl.Full() {
		t.Error("Disabled limiter reports full")
	}
	if cl.Limit() != 0 {
		t.Errorf("Expected limit 0, got %d", cl.Limit())
	}
}

func TestConcurrencyLimiter_SetLimit(t *testing.T) {
	cl := NewConcurrencyLimiter(1)
	cl.Acquire()

	cl.SetLimit(3)
	if !cl.Acquire() {
		t.Error("Expected acquire after raising limit to succeed")
	}

	cl.SetLimit(1)
	if cl.Acquire() {
		t.Error("Expected acquire above lowered limit to fail")
	}
	if cl.InFlight() != 2 {
		t.Errorf("Expected existing holders to keep slots, got %d in flight", cl.InFlight())
	}
}

func TestConcurrencyLimiter_ReleaseWithoutAcquire(t *testing.T) {
	cl := NewConcurrencyLimiter(1)
	cl.Release()
	if cl.InFlight() != 0 {
		t.Errorf("Expected in-flight to stay at 0, got %d", cl.InFlight())
	}
}

func TestConcurrencyLimiter_Concurrent(t *testing.T) {
	const limit = 5
	cl := NewConcurrencyLimiter(limit)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cl.Acquire() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if acquired != limit {
		t.Errorf("Expected %d acquires, got %d", limit, acquired)
	}
}
