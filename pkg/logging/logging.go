// Package logging configures structured logging for earshot.
//
// Everything logs through log/slog to stderr; stdout is left for transcripts.
// Components take a child logger from For so every line carries its origin:
//
//	logging.Setup(logging.Options{Level: "debug", Format: "text"})
//	log := logging.For("capture")
//	log.Debug("energy", "energy", 0.004)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls Setup. Zero values mean info level, text format, stderr.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

var levels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func lookupLevel(name string) (slog.Level, bool) {
	l, ok := levels[strings.ToLower(strings.TrimSpace(name))]
	return l, ok
}

// ParseLevel maps a level name to slog.Level, falling back to info.
func ParseLevel(name string) slog.Level {
	l, _ := lookupLevel(name)
	return l
}

// LevelNames lists the accepted level names for flag help.
func LevelNames() string {
	return "debug, info, warn, error"
}

// Validate rejects level names ParseLevel would silently turn into info.
func Validate(level string) error {
	if _, ok := lookupLevel(level); !ok {
		return fmt.Errorf("logging: unknown level %q (valid: %s)", level, LevelNames())
	}
	return nil
}

// ValidateFormat accepts "text", "json" or empty.
func ValidateFormat(format string) error {
	switch strings.ToLower(format) {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("logging: unknown format %q (valid: text, json)", format)
	}
}

// Setup replaces the default slog logger. Debug level adds source positions,
// which helps when tracing the capture loop frame by frame.
func Setup(opts Options) error {
	if err := Validate(opts.Level); err != nil {
		return err
	}
	if err := ValidateFormat(opts.Format); err != nil {
		return err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := ParseLevel(opts.Level)
	hopts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	var h slog.Handler = slog.NewTextHandler(out, hopts)
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(out, hopts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// For returns the default logger tagged with a component name. Call it after
// Setup; loggers taken earlier keep the handler that was current then.
func For(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
