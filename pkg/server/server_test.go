package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/jobs"
	"mercator-hq/sentinel/pkg/limits"
	"mercator-hq/sentinel/pkg/limits/budget"
	"mercator-hq/sentinel/pkg/limits/circuit"
	"mercator-hq/sentinel/pkg/limits/ratelimit"
	"mercator-hq/sentinel/pkg/telemetry/health"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
)

func newTestServer(t *testing.T) (*Server, *limits.Governor) {
	t.Helper()

	reg := metrics.NewRegistry()
	g := limits.NewGovernor(limits.Config{
		RateLimit: ratelimit.Config{MaxPerMinute: 10},
		Budget:    budget.Config{MaxTokensPerDay: 1000},
		Circuit:   circuit.Config{FailureThreshold: 1, ResetTimeout: time.Minute},
	}, limits.WithMetrics(limits.NewMetrics(reg)))
	t.Cleanup(func() { g.Close(context.Background()) })

	s := New(config.AdminConfig{ShutdownTimeout: time.Second}, g, Options{
		Registry: reg,
		Checker:  health.New(time.Second),
		Version:  health.VersionInfo{Version: "1.2.3"},
	})
	return s, g
}

func get(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestServer_Budget(t *testing.T) {
	s, g := newTestServer(t)
	h := s.Handler()

	_, err := g.Execute(context.Background(), limits.Call{Operation: "review", EstimatedTokens: 100},
		func(ctx context.Context, _ jobs.ProgressFunc) (limits.Result, error) {
			return limits.Result{Usage: limits.Usage{Tokens: 250}}, nil
		})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	rec := get(t, h, http.MethodGet, "/v1/budget")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status budget.Status
	decode(t, rec, &status)
	if status.Consumed != 250 || status.Limit != 1000 {
		t.Errorf("unexpected budget status: %+v", status)
	}
}

func TestServer_RateLimit(t *testing.T) {
	s, g := newTestServer(t)
	h := s.Handler()

	for i := 0; i < 3; i++ {
		if _, err := g.Execute(context.Background(), limits.Call{Operation: "ask"}, func(ctx context.Context, _ jobs.ProgressFunc) (limits.Result, error) {
			return limits.Result{}, nil
		}); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}

	rec := get(t, h, http.MethodGet, "/v1/ratelimit?key="+ratelimit.GlobalKey)
	var resp rateLimitResponse
	decode(t, rec, &resp)
	if resp.Limit != 10 || len(resp.Keys) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Keys[0].Used != 3 || resp.Keys[0].Remaining != 7 {
		t.Errorf("unexpected window: %+v", resp.Keys[0])
	}
}

func TestServer_CircuitsAndReset(t *testing.T) {
	s, g := newTestServer(t)
	h := s.Handler()

	call := limits.Call{Operation: "exec", Params: map[string]string{"cwd": "/repo"}}
	_, err := g.Execute(context.Background(), call, func(ctx context.Context, _ jobs.ProgressFunc) (limits.Result, error) {
		return limits.Result{}, errors.New("backend down")
	})
	if err == nil {
		t.Fatal("expected backend error")
	}

	var stats circuit.Stats
	decode(t, get(t, h, http.MethodGet, "/v1/circuits"), &stats)
	if stats.Open != 1 {
		t.Fatalf("expected 1 open circuit, got %+v", stats)
	}

	rec := get(t, h, http.MethodPost, "/v1/circuits/reset")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	decode(t, rec, &stats)
	if stats.Open != 0 {
		t.Errorf("expected all circuits closed after reset, got %+v", stats)
	}

	if rec := get(t, h, http.MethodGet, "/v1/circuits/reset"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET reset, got %d", rec.Code)
	}
}

func TestServer_Jobs(t *testing.T) {
	s, g := newTestServer(t)
	h := s.Handler()

	release := make(chan struct{})
	id, err := g.Submit(context.Background(), limits.Call{Operation: "review"}, func(ctx context.Context, _ jobs.ProgressFunc) (limits.Result, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return limits.Result{}, ctx.Err()
		}
		return limits.Result{Value: "done"}, nil
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var list []jobs.Summary
	decode(t, get(t, h, http.MethodGet, "/v1/jobs"), &list)
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("unexpected job list: %+v", list)
	}

	if rec := get(t, h, http.MethodGet, "/v1/jobs?status=bogus"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}
	if rec := get(t, h, http.MethodGet, "/v1/jobs/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", rec.Code)
	}

	rec := get(t, h, http.MethodDelete, "/v1/jobs/"+id)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on cancel, got %d", rec.Code)
	}
	var job jobs.Job
	decode(t, rec, &job)
	if job.Status != jobs.StatusCancelled {
		t.Errorf("expected cancelled job, got %s", job.Status)
	}
	close(release)

	if rec := get(t, h, http.MethodDelete, "/v1/jobs/"+id); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 when cancelling a finished job, got %d", rec.Code)
	}
}

func TestServer_RequestID(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := get(t, h, http.MethodGet, "/version")
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a generated request ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
		t.Errorf("expected request ID to be propagated, got %q", got)
	}
}

func TestServer_MetricsAndHealth(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	get(t, h, http.MethodGet, "/v1/circuits")

	rec := get(t, h, http.MethodGet, "/metrics")
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `sentinel_http_requests_total{code="200",handler="circuits",method="get"} 1`) {
		t.Errorf("expected admin request counter in scrape output")
	}

	if rec := get(t, h, http.MethodGet, "/health/ready"); rec.Code != http.StatusOK {
		t.Errorf("expected ready, got %d", rec.Code)
	}
	if rec := get(t, h, http.MethodGet, "/health/live"); rec.Code != http.StatusOK {
		t.Errorf("expected live, got %d", rec.Code)
	}
}

func TestServer_Recovery(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := get(t, h, http.MethodGet, "/")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", rec.Code)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	s, _ := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get("http://" + ln.Addr().String() + "/version")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server did not come up: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if s.Addr() != ln.Addr().String() {
		t.Errorf("Addr() = %q, want %q", s.Addr(), ln.Addr().String())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
