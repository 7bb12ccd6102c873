package main

import (
	"bytes"
	"context"
	"errors"
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
	"mercator-hq/sentinel/pkg/server"
)

func newAdminServer(t *testing.T) (*httptest.Server, *limits.Governor) {
	t.Helper()

	g := limits.NewGovernor(limits.Config{
		Budget:  budget.Config{MaxTokensPerDay: 5000},
		Circuit: circuit.Config{FailureThreshold: 1, ResetTimeout: time.Minute},
	})
	t.Cleanup(func() { g.Close(context.Background()) })

	ts := httptest.NewServer(server.New(config.AdminConfig{}, g, server.Options{}).Handler())
	t.Cleanup(ts.Close)
	return ts, g
}

func TestFetchStatus(t *testing.T) {
	ts, g := newAdminServer(t)
	ctx := context.Background()

	_, err := g.Execute(ctx, limits.Call{Operation: "review"}, func(ctx context.Context, _ jobs.ProgressFunc) (limits.Result, error) {
		return limits.Result{Usage: limits.Usage{Tokens: 1200}}, nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	_, _ = g.Execute(ctx, limits.Call{Operation: "exec"}, func(ctx context.Context, _ jobs.ProgressFunc) (limits.Result, error) {
		return limits.Result{}, errors.New("backend down")
	})

	id, err := g.Submit(ctx, limits.Call{Operation: "review"}, func(ctx context.Context, _ jobs.ProgressFunc) (limits.Result, error) {
		return limits.Result{Value: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := g.Jobs().Wait(ctx, id, time.Second); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	report, err := fetchStatus(ctx, ts.Client(), ts.URL)
	if err != nil {
		t.Fatalf("fetchStatus() error = %v", err)
	}
	if report.Budget.Consumed != 1200 || report.Budget.Limit != 5000 {
		t.Errorf("unexpected budget: %+v", report.Budget)
	}
	if report.Circuits.Open != 1 {
		t.Errorf("expected 1 open circuit, got %+v", report.Circuits)
	}
	if report.Jobs[jobs.StatusCompleted] != 1 {
		t.Errorf("expected 1 completed job, got %v", report.Jobs)
	}

	report.noColor = true
	var out bytes.Buffer
	if err := report.RenderText(&out); err != nil {
		t.Fatalf("RenderText() error = %v", err)
	}
	for _, want := range []string{"1200 / 5000", "exec", "backend down", "completed:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("text output missing %q:\n%s", want, out.String())
		}
	}
}

func TestFetchStatus_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"budget store unavailable"}`))
	}))
	defer ts.Close()

	_, err := fetchStatus(context.Background(), ts.Client(), ts.URL)
	if err == nil || !strings.Contains(err.Error(), "budget store unavailable") {
		t.Errorf("expected store error, got %v", err)
	}
}

func TestBaseURL(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:9090":         "http://127.0.0.1:9090",
		"http://admin:9090/":     "http://admin:9090",
		"https://sentinel.local": "https://sentinel.local",
	}
	for in, want := range tests {
		if got := baseURL(in); got != want {
			t.Errorf("baseURL(%q) = %q, want %q", in, got, want)
		}
	}
}
