package socketcan

import (
	"context"
	"errors"

	"go.einride.tech/can"

	"github.com/kstaniek/go-canframe/internal/metrics"
	"github.com/kstaniek/go-canframe/internal/transport"
)

var ErrTxOverflow = errors.New("socketcan tx overflow")

// Dev is the minimal interface needed by the backend and TXWriter.
// Implemented by *Device on linux and by fakes in tests.
type Dev interface {
	ReadFrame(*can.Frame) error
	WriteFrame(can.Frame) error
	Close() error
}

// TXWriter funnels all SocketCAN writes through a single goroutine.
type TXWriter struct{ base *transport.AsyncTx[can.Frame] }

// NewTXWriter creates a SocketCAN TXWriter with a queue of buf frames.
func NewTXWriter(parent context.Context, dev Dev, buf int) *TXWriter {
	hooks := transport.Hooks{
		OnError: func(error) { metrics.IncError(metrics.ErrSocketCANWrite) },
		OnAfter: metrics.IncSocketCANTx,
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSocketCANOver)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, dev.WriteFrame, hooks)}
}

// SendFrame queues fr for the device (ErrTxOverflow when the queue is full).
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.Enqueue(fr) }

// Flush waits for queued frames to be written.
func (w *TXWriter) Flush(ctx context.Context) error { return w.base.Flush(ctx) }

// Close stops the writer and waits for the worker goroutine to finish.
func (w *TXWriter) Close() { w.base.Close() }
