package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/sentinel/pkg/cli"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func runValidate(t *testing.T, path, format string) (string, error) {
	t.Helper()

	origFile, origFormat := cfgFile, validateFlags.format
	t.Cleanup(func() { cfgFile, validateFlags.format = origFile, origFormat })
	cfgFile, validateFlags.format = path, format

	var out bytes.Buffer
	validateCmd.SetOut(&out)
	t.Cleanup(func() { validateCmd.SetOut(nil) })

	err := validateConfig(validateCmd, nil)
	return out.String(), err
}

func TestValidate_Text(t *testing.T) {
	path := writeConfigFile(t, `
limits:
  rate_limit:
    max_per_minute: 30
  budget:
    max_tokens_per_day: 500000
  sweep:
    schedule: "@every 5m"
`)

	out, err := runValidate(t, path, "text")
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	for _, want := range []string{"Configuration valid", "30/min", "500000 tokens", "@every 5m"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidate_JSON(t *testing.T) {
	path := writeConfigFile(t, `
store:
  backend: memory
`)

	out, err := runValidate(t, path, "json")
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}

	var got effectiveConfig
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Store != "memory" || got.MaxPerMinute == 0 {
		t.Errorf("unexpected summary: %+v", got)
	}
}

func TestValidate_InvalidConfig(t *testing.T) {
	path := writeConfigFile(t, `
limits:
  rate_limit:
    max_per_minute: -1
store:
  backend: etcd
`)

	_, err := runValidate(t, path, "text")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if code := cli.ExitCode(err); code != cli.ExitConfig {
		t.Errorf("ExitCode() = %d, want %d", code, cli.ExitConfig)
	}
	if !strings.Contains(err.Error(), "store.backend") {
		t.Errorf("expected store.backend in error, got %v", err)
	}
}

func TestValidate_BadFormat(t *testing.T) {
	if _, err := runValidate(t, "", "yaml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}
