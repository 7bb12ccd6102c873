package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"mercator-hq/sentinel/pkg/config"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"config", NewConfigError("sentinel.yaml", errors.New("missing")), ExitConfig},
		{"validation", fmt.Errorf("load: %w", config.ValidationError{Errors: []config.FieldError{{Field: "limits", Message: "bad"}}}), ExitConfig},
		{"command wrapping config", NewCommandError("run", NewConfigError("", errors.New("x"))), ExitConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	underlying := errors.New("underlying error")

	if got := NewCommandError("run", underlying).Error(); got != "command run failed: underlying error" {
		t.Errorf("CommandError.Error() = %q", got)
	}
	if got := NewConfigError("a.yaml", underlying).Error(); got != "config error in a.yaml: underlying error" {
		t.Errorf("ConfigError.Error() = %q", got)
	}
	if !errors.Is(NewConfigError("", underlying), underlying) {
		t.Error("ConfigError should unwrap to the underlying error")
	}
}

func TestParseFormat(t *testing.T) {
	for _, in := range []string{"", "text", "json"} {
		if _, err := ParseFormat(in); err != nil {
			t.Errorf("ParseFormat(%q) error = %v", in, err)
		}
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

type renderable struct{ name string }

func (r renderable) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "name: %s\n", r.name)
	return err
}

func TestFormatters(t *testing.T) {
	var buf bytes.Buffer

	if err := NewFormatter(FormatText).FormatTo(&buf, renderable{name: "budget"}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if buf.String() != "name: budget\n" {
		t.Errorf("text output = %q", buf.String())
	}

	buf.Reset()
	if err := NewFormatter(FormatJSON).FormatTo(&buf, map[string]int{"consumed": 5}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"consumed": 5`) {
		t.Errorf("json output = %q", buf.String())
	}
}

func TestSetupSignalHandler(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := SetupSignalHandler(parent)
	defer stop()

	select {
	case <-ctx.Done():
		t.Fatal("context should not be cancelled initially")
	default:
	}

	cancel()
	<-ctx.Done()
}
