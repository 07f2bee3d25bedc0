package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-canframe/internal/hub"
	"github.com/kstaniek/go-canframe/internal/metrics"
	"github.com/kstaniek/go-canframe/internal/serial"
	"github.com/kstaniek/go-canframe/internal/transport"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// openSerialPort is a hook for tests.
var openSerialPort = serial.Open

func initSerialBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, g *errgroup.Group) (txSink, func(), error) {
	sp, err := openSerialPort(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open serial: %w", err)
	}
	l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud, "std_ids", cfg.serialStdIDs)
	codec := serial.Codec{StandardIDs: cfg.serialStdIDs}
	w := serial.NewTXWriter(ctx, sp, codec, txQueueSize)
	var dec transport.StreamDecoder = codec
	g.Go(func() error {
		defer l.Info("serial_rx_end")
		buf := make([]byte, serialReadBufSize)
		acc := bytes.NewBuffer(nil)
		bo := newRxBackoff()
		for {
			if ctx.Err() != nil {
				return nil
			}
			n, err := sp.Read(buf)
			if n > 0 {
				acc.Write(buf[:n])
				_ = dec.DecodeStream(acc, h.Broadcast)
				if acc.Len() == 0 && cap(acc.Bytes()) > largeBufferReclaimThreshold {
					acc = bytes.NewBuffer(nil)
				}
				bo.Reset()
			}
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			var perr *os.PathError
			if errors.As(err, &perr) {
				return fmt.Errorf("serial read %s: %w", cfg.serialDev, err)
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				continue
			}
			d := bo.NextBackOff()
			metrics.IncError(metrics.ErrSerialRead)
			l.Warn("serial_read_error", "error", err, "backoff", d)
			sleepFn(d)
		}
	})
	return w, func() { _ = sp.Close(); w.Close() }, nil
}
