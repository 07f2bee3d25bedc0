// Command canframe encodes, decodes and monitors CAN messages described by a
// DBC database, over SocketCAN or an Ampio serial gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/kstaniek/go-canframe/internal/dbcfile"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, showVersion, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if showVersion {
		fmt.Fprintf(stdout, "canframe %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel, stderr)
	l.Debug("build_info", "version", version, "commit", commit, "date", date)

	cat, err := dbcfile.Load(cfg.dbcPath)
	if err != nil {
		l.Error("dbc_load_error", "path", cfg.dbcPath, "error", err)
		return 1
	}
	l.Debug("dbc_loaded", "path", cfg.dbcPath, "messages", cat.Len())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.mode {
	case "encode":
		err = runEncode(ctx, cfg, cat, stdout, l)
	case "decode":
		err = runDecode(cfg, cat, stdout)
	case "monitor":
		err = runMonitor(ctx, cfg, cat, stdout, l)
	}
	if err != nil {
		l.Error("run_error", "mode", cfg.mode, "error", err)
		return 1
	}
	return 0
}
