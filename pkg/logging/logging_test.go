package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tcases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tcases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if err := Setup(Options{Level: "chatty"}); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	if err := Setup(Options{Format: "xml"}); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestValidate(t *testing.T) {
	for _, ok := range []string{"", "debug", " Warn ", "warning", "ERROR"} {
		if err := Validate(ok); err != nil {
			t.Errorf("Validate(%q) = %v", ok, err)
		}
	}
	if err := Validate("trace"); err == nil {
		t.Error("Validate(trace) should fail")
	}
}

func TestSetupJSONWithComponent(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if err := Setup(Options{Level: "info", Format: "json", Output: &buf}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	For("capture").Info("voice detected", "energy", 0.01)
	For("capture").Debug("filtered out")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1:\n%s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["component"] != "capture" || rec["msg"] != "voice detected" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	if log.Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard logger should drop errors too")
	}
}
