package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAsyncTxClosed is returned by Enqueue after Close.
var ErrAsyncTxClosed = errors.New("async tx closed")

// AsyncTx funnels writes of T through a single goroutine. Enqueue never
// blocks: when the buffer is full it returns the OnDrop hook's error.
//
//	a := NewAsyncTx(ctx, buf, sendFn, hooks)
//	a.Enqueue(v)
//	a.Close()
//
// Backends use it for bus frames; the MQTT publisher uses it for decoded
// messages.
type AsyncTx[T any] struct {
	mu      sync.Mutex
	ch      chan T
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	send    func(T) error
	hooks   Hooks
	closed  atomic.Bool
	pending atomic.Int64 // queued or being sent
}

// Hooks customize AsyncTx behavior.
type Hooks struct {
	// OnError is called when send fails.
	OnError func(error)
	// OnAfter is called after a successful send.
	OnAfter func()
	// OnDrop is called when the buffer is full; its error is returned from
	// Enqueue. A nil OnDrop drops silently.
	OnDrop func() error
}

// NewAsyncTx starts the worker with a queue of buf entries.
func NewAsyncTx[T any](parent context.Context, buf int, send func(T) error, hooks Hooks) *AsyncTx[T] {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx[T]{
		ch:     make(chan T, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncTx[T]) loop() {
	defer a.wg.Done()
	for {
		select {
		case v, ok := <-a.ch:
			if !ok {
				return
			}
			err := a.send(v)
			a.pending.Add(-1)
			if err != nil {
				if a.hooks.OnError != nil {
					a.hooks.OnError(err)
				}
				continue
			}
			if a.hooks.OnAfter != nil {
				a.hooks.OnAfter()
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// Enqueue queues v or returns the drop error when the queue is full.
func (a *AsyncTx[T]) Enqueue(v T) error {
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	a.pending.Add(1)
	select {
	case a.ch <- v:
		return nil
	default:
		a.pending.Add(-1)
		if a.hooks.OnDrop != nil {
			return a.hooks.OnDrop()
		}
		return nil
	}
}

// Len is the number of queued entries.
func (a *AsyncTx[T]) Len() int { return len(a.ch) }

// Flush waits until every accepted entry has been handed to send.
func (a *AsyncTx[T]) Flush(ctx context.Context) error {
	t := time.NewTicker(2 * time.Millisecond)
	defer t.Stop()
	for a.pending.Load() > 0 {
		if a.closed.Load() {
			return ErrAsyncTxClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// Close stops the worker and waits for it to exit. Queued entries that were
// not yet sent are discarded.
func (a *AsyncTx[T]) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
