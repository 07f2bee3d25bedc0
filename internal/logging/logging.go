// Package logging holds the process-wide slog logger. Library packages log
// through L (hot decode paths) or For (subsystems that tag their records).
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(New(FormatText, slog.LevelInfo, os.Stderr))
}

// L returns the current global logger.
func L() *slog.Logger { return logger.Load() }

// For returns the global logger tagged with component=name.
func For(name string) *slog.Logger { return logger.Load().With("component", name) }

// Set replaces the global logger. A nil logger is ignored.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// New builds a logger writing to w (stderr when nil).
func New(format Format, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseFormat accepts text or json, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON:
		return f, nil
	}
	return FormatText, fmt.Errorf("invalid log format %q", s)
}

// ParseLevel maps debug|info|warn|error to a slog level. An empty string is
// info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
}
