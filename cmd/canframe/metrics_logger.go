package main

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-canframe/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, g *errgroup.Group) {
	if interval <= 0 {
		return
	}
	g.Go(func() error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				logSnapshot(l, metrics.Snap())
			case <-ctx.Done():
				return nil
			}
		}
	})
}

func logSnapshot(l *slog.Logger, snap metrics.Snapshot) {
	l.Info("metrics_snapshot",
		"decoded", snap.Decoded,
		"unknown", snap.Unknown,
		"encoded", snap.Encoded,
		"range_rejects", snap.RangeRejects,
		"serial_rx", snap.SerialRx,
		"socketcan_rx", snap.SocketCANRx,
		"serial_tx", snap.SerialTx,
		"socketcan_tx", snap.SocketCANTx,
		"mqtt_published", snap.MQTT,
		"hub_drops", snap.HubDrops,
		"malformed", snap.Malformed,
		"errors", snap.Errors,
	)
}
