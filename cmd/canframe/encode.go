package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.einride.tech/can"
	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-canframe/internal/hub"
	"github.com/kstaniek/go-canframe/internal/j1939"
	"github.com/kstaniek/go-canframe/internal/message"
)

// runEncode builds -message from -set, prints it and optionally transmits it.
func runEncode(ctx context.Context, cfg *appConfig, cat *message.Catalog, out io.Writer, l *slog.Logger) error {
	def, err := cat.ByName(cfg.message)
	if err != nil {
		return err
	}
	m := def.New()
	if err := assign(m, cfg.set); err != nil {
		return err
	}
	printMessage(out, m)
	if !cfg.send {
		return nil
	}
	fr, err := m.BusFrame()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	tx, cleanup, err := initBackend(gctx, cfg, hub.New(), l, g)
	if err != nil {
		return err
	}
	err = transmit(gctx, tx, fr, cfg.count, sendInterval(cfg, m), l)
	cancel()
	cleanup()
	if werr := g.Wait(); err == nil {
		err = werr
	}
	return err
}

// assign applies "Name=value" pairs separated by commas.
func assign(m *message.Message, set string) error {
	if strings.TrimSpace(set) == "" {
		return nil
	}
	for _, kv := range strings.Split(set, ",") {
		name, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid assignment %q (want Name=value)", strings.TrimSpace(kv))
		}
		if err := m.Assign(strings.TrimSpace(name), strings.TrimSpace(v)); err != nil {
			return err
		}
	}
	return nil
}

func sendInterval(cfg *appConfig, m *message.Message) time.Duration {
	if cfg.interval > 0 {
		return cfg.interval
	}
	if ct := m.Frame().CycleTime(); ct > 0 {
		return time.Duration(ct) * time.Millisecond
	}
	return defaultSendInterval
}

func transmit(ctx context.Context, tx txSink, fr can.Frame, count int, interval time.Duration, l *slog.Logger) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for i := 0; i < count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := tx.SendFrame(fr); err != nil {
			return fmt.Errorf("send %d/%d: %w", i+1, count, err)
		}
	}
	fctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := tx.Flush(fctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	l.Info("frames_sent", "id", fr.ID, "extended", fr.IsExtended, "count", count, "interval", interval)
	return nil
}

// printMessage writes the identity line, hex, binary and formatted signals.
func printMessage(out io.Writer, m *message.Message) {
	f := m.Frame()
	kind := "std"
	if f.Extended() {
		kind = "ext"
	}
	fmt.Fprintf(out, "%s id=0x%X %s", m.Name(), f.ID(), kind)
	if f.PGN() != j1939.InvalidPGN {
		fmt.Fprintf(out, " pgn=0x%X priority=%d", f.PGN(), f.Priority())
	}
	fmt.Fprintf(out, " len=%d\nhex: %s\nbin: %s\n%s\n", f.DataLength(), f.HexString(), f.BinaryString(), m)
}
