// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns a text or JSON logger writing to w whose level follows level.
// A nil w writes to stderr.
func New(w io.Writer, format string, level *slog.LevelVar) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Setup installs a logger as the slog default and returns its level so it
// can be changed later.
func Setup(w io.Writer, format, level string) (*slog.LevelVar, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	v := new(slog.LevelVar)
	v.Set(lvl)
	slog.SetDefault(New(w, format, v))

	return v, nil
}
