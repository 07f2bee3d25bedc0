package main

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-canframe/internal/hub"
	"github.com/kstaniek/go-canframe/internal/transport"
)

// txSink is the transmit side of a backend.
type txSink interface {
	transport.FrameSink
	Flush(context.Context) error
}

// initBackend selects the backend, starts its RX loop in g and returns the
// transmit side and a cleanup. Received frames go to h.
func initBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, g *errgroup.Group) (txSink, func(), error) {
	switch cfg.backend {
	case "serial":
		return initSerialBackend(ctx, cfg, h, l, g)
	case "socketcan":
		return initSocketCANBackend(ctx, cfg, h, l, g)
	default:
		return nil, func() {}, fmt.Errorf("unknown backend %q (use serial|socketcan)", cfg.backend)
	}
}
