package main

import (
	"context"
	"fmt"
	"log/slog"

	"go.einride.tech/can"
	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-canframe/internal/hub"
	"github.com/kstaniek/go-canframe/internal/metrics"
	"github.com/kstaniek/go-canframe/internal/socketcan"
)

// openSocketCANDevice is a hook for tests.
var openSocketCANDevice = func(ctx context.Context, iface string) (socketcan.Dev, error) {
	return socketcan.Open(ctx, iface)
}

func initSocketCANBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, g *errgroup.Group) (txSink, func(), error) {
	dev, err := openSocketCANDevice(ctx, cfg.canIf)
	if err != nil {
		return nil, func() {}, fmt.Errorf("socketcan open %s: %w", cfg.canIf, err)
	}
	l.Info("socketcan_open", "if", cfg.canIf)
	tw := socketcan.NewTXWriter(ctx, dev, txQueueSize)
	g.Go(func() error {
		defer l.Info("socketcan_rx_end")
		bo := newRxBackoff()
		for {
			if ctx.Err() != nil {
				return nil
			}
			var fr can.Frame
			if err := dev.ReadFrame(&fr); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d := bo.NextBackOff()
				metrics.IncError(metrics.ErrSocketCANRead)
				l.Warn("socketcan_read_error", "error", err, "backoff", d)
				sleepFn(d)
				continue
			}
			metrics.IncSocketCANRx()
			h.Broadcast(fr)
			bo.Reset()
		}
	})
	return tw, func() { _ = dev.Close(); tw.Close() }, nil
}
