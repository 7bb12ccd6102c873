package main

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"mercator-hq/sentinel/pkg/config"
)

func TestApp_RunAndShutdown(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Admin.ListenAddress = "127.0.0.1:0"
	cfg.Admin.ShutdownTimeout = time.Second
	cfg.Store.Backend = "memory"
	cfg.Limits.Sweep.Schedule = "@every 1h"
	cfg.Telemetry.Logging.Format = "text"

	var logs bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, &logs)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.run(ctx, "") }()

	var addr string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr = a.admin.Addr(); addr != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("admin server did not start")
	}

	resp, err := http.Get("http://" + addr + cfg.Telemetry.Health.ReadinessPath)
	if err != nil {
		t.Fatalf("readiness request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected ready, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	if !strings.Contains(logs.String(), "sentinel stopped") {
		t.Errorf("expected shutdown log, got:\n%s", logs.String())
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	disabled := false
	cfg.Admin.Enabled = &disabled

	a, err := newApp(context.Background(), cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close(context.Background())

	next := config.NewDefaultConfig()
	next.Limits.RateLimit.MaxPerMinute = 7
	next.Limits.Budget.MaxTokensPerDay = 900
	a.applyConfig(next)

	if got := a.governor.RateLimiter().Limit(); got != 7 {
		t.Errorf("rate limit = %d, want 7", got)
	}
	if got := a.governor.Budget().Limit(); got != 900 {
		t.Errorf("budget limit = %d, want 900", got)
	}
}

func TestApp_BadLogLevel(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Telemetry.Logging.Level = "loud"

	if _, err := newApp(context.Background(), cfg, &bytes.Buffer{}); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestRunCmd_Flags(t *testing.T) {
	for _, name := range []string{"listen-address", "log-level", "dry-run", "no-watch"} {
		if runCmd.Flags().Lookup(name) == nil {
			t.Errorf("run command missing --%s", name)
		}
	}
	if f := runCmd.Flags().ShorthandLookup("l"); f == nil || f.Name != "listen-address" {
		t.Errorf("-l should be shorthand for --listen-address, got %v", f)
	}
}
