package main

import (
	"io"
	"log/slog"

	"github.com/kstaniek/go-canframe/internal/logging"
)

// setupLogger installs the global logger. Bad values were already rejected by
// validate, so parse errors only fall back to defaults here.
func setupLogger(format, level string, w io.Writer) *slog.Logger {
	f, _ := logging.ParseFormat(format)
	lvl, _ := logging.ParseLevel(level)
	l := logging.New(f, lvl, w).With("app", "canframe")
	logging.Set(l)
	return l
}
