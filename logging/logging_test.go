package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"golang.org/x/exp/slog"
)

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger reports enabled")
	}
	custom := Nop()
	if OrNop(custom) != custom {
		t.Fatal("OrNop replaced a non-nil logger")
	}
}

func TestComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	l := Component(New(buf, slog.LevelInfo), "swapchain")
	l.Debug("hidden")
	l.Error("recreate failed", slog.String("op", "recreate"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level: %q", out)
	}
	if !strings.Contains(out, "component=swapchain") || !strings.Contains(out, "op=recreate") {
		t.Fatalf("missing attributes: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel accepted an unknown level")
	}
}
