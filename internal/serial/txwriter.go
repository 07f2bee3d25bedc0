package serial

import (
	"context"
	"errors"

	"go.einride.tech/can"

	"github.com/kstaniek/go-canframe/internal/logging"
	"github.com/kstaniek/go-canframe/internal/metrics"
	"github.com/kstaniek/go-canframe/internal/transport"
)

var ErrTxOverflow = errors.New("serial tx overflow")

// TXWriter funnels all serial writes through one goroutine.
type TXWriter struct{ base *transport.AsyncTx[can.Frame] }

// NewTXWriter creates a serial TXWriter with a queue of buf frames.
func NewTXWriter(parent context.Context, sp Port, enc transport.FrameEncoder, buf int) *TXWriter {
	wire := make([]byte, 0, 32)
	send := func(fr can.Frame) error {
		// only the worker goroutine touches wire
		wire = enc.AppendEncode(wire[:0], fr)
		_, err := sp.Write(wire)
		return err
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSerialWrite)
			logging.For("serial").Error("serial_write_error", "error", err)
		},
		OnAfter: metrics.IncSerialTx,
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSerialOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// SendFrame queues fr for asynchronous write (ErrTxOverflow when full).
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.Enqueue(fr) }

// Flush waits for queued frames to be written.
func (w *TXWriter) Flush(ctx context.Context) error { return w.base.Flush(ctx) }

// Close stops the writer and waits for the worker goroutine to exit.
func (w *TXWriter) Close() { w.base.Close() }
