package main

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.einride.tech/can"
	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-canframe/internal/hub"
	"github.com/kstaniek/go-canframe/internal/metrics"
	"github.com/kstaniek/go-canframe/internal/serial"
	"github.com/kstaniek/go-canframe/internal/socketcan"
)

// fakeSerialPort replays reads and records writes.
type fakeSerialPort struct {
	mu     sync.Mutex
	reads  [][]byte
	idx    int
	writes [][]byte
}

func (f *fakeSerialPort) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.idx >= len(f.reads) {
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return 0, io.EOF
	}
	chunk := f.reads[f.idx]
	f.idx++
	f.mu.Unlock()
	return copy(p, chunk), nil
}

func (f *fakeSerialPort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeSerialPort) Close() error { return nil }

func (f *fakeSerialPort) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// rxEnvelope builds an adapter->host frame: 2D D4 LEN ID(4) PAYLOAD CRC.
func rxEnvelope(id uint32, payload ...byte) []byte {
	body := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(body, id)
	copy(body[4:], payload)
	out := []byte{0x2D, 0xD4, byte(len(body) + 1)}
	sum := out[2] + 0x2D
	for _, b := range body {
		sum += b
	}
	out = append(out, body...)
	return append(out, sum)
}

func useSerialPort(t *testing.T, p serial.Port) {
	t.Helper()
	openSerialPort = func(string, int, time.Duration) (serial.Port, error) { return p, nil }
	t.Cleanup(func() { openSerialPort = serial.Open })
}

func TestInitSerialBackendBasic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	port := &fakeSerialPort{reads: [][]byte{rxEnvelope(0x1F0, 0xC0, 0x06, 0xE0)}}
	useSerialPort(t, port)

	h := hub.New()
	sub := hub.NewSubscriber("test", 1)
	h.Add(sub)

	before := metrics.Snap().SerialRx
	cfg := &appConfig{backend: "serial", serialDev: "fake", baud: 115200, serialReadTO: 50 * time.Millisecond, serialStdIDs: true}
	var g errgroup.Group
	tx, cleanup, err := initSerialBackend(ctx, cfg, h, testLogger(), &g)
	if err != nil {
		t.Fatalf("initSerialBackend: %v", err)
	}

	select {
	case fr := <-sub.Out:
		want := can.Frame{ID: 0x1F0, Length: 3, Data: can.Data{0xC0, 0x06, 0xE0}}
		if fr != want {
			t.Fatalf("unexpected frame: %v", fr)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}
	if metrics.Snap().SerialRx == before {
		t.Fatalf("expected SerialRx to increase")
	}

	fr := can.Frame{ID: 0x18FF0100, Length: 1, IsExtended: true}
	if err := tx.SendFrame(fr); err != nil {
		t.Fatalf("send frame: %v", err)
	}
	if err := tx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if w := port.written(); len(w) != 1 || len(w[0]) != 3+6+1+1 {
		t.Fatalf("writes % X", w)
	}

	cancel()
	cleanup()
	if err := g.Wait(); err != nil {
		t.Fatalf("rx loop: %v", err)
	}
}

type fakeSocketDev struct {
	mu       sync.Mutex
	frames   []can.Frame
	idx      int
	errAfter bool
	written  []can.Frame
}

func (d *fakeSocketDev) ReadFrame(fr *can.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.idx < len(d.frames) {
		*fr = d.frames[d.idx]
		d.idx++
		return nil
	}
	if d.errAfter {
		return io.ErrUnexpectedEOF
	}
	time.Sleep(5 * time.Millisecond)
	return io.EOF
}

func (d *fakeSocketDev) WriteFrame(fr can.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written = append(d.written, fr)
	return nil
}

func (d *fakeSocketDev) Close() error { return nil }

func useSocketDev(t *testing.T, dev socketcan.Dev) {
	t.Helper()
	prev := openSocketCANDevice
	openSocketCANDevice = func(context.Context, string) (socketcan.Dev, error) { return dev, nil }
	t.Cleanup(func() { openSocketCANDevice = prev })
}

func TestInitSocketCANBackendBasic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleepFn = func(time.Duration) { time.Sleep(time.Millisecond) }
	defer func() { sleepFn = time.Sleep }()

	frame := can.Frame{ID: 0x555, Length: 3, Data: can.Data{1, 2, 3}}
	dev := &fakeSocketDev{frames: []can.Frame{frame}, errAfter: true}
	useSocketDev(t, dev)

	h := hub.New()
	sub := hub.NewSubscriber("test", 1)
	h.Add(sub)
	before := metrics.Snap()
	cfg := &appConfig{backend: "socketcan", canIf: "vcan0"}
	var g errgroup.Group
	tx, cleanup, err := initBackend(ctx, cfg, h, testLogger(), &g)
	if err != nil {
		t.Fatalf("initBackend: %v", err)
	}

	select {
	case fr := <-sub.Out:
		if fr != frame {
			t.Fatalf("unexpected frame: %v", fr)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for socketcan frame")
	}
	if err := tx.SendFrame(frame); err != nil {
		t.Fatalf("send frame: %v", err)
	}
	if err := tx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for metrics.Snap().Errors == before.Errors && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	after := metrics.Snap()
	if after.SocketCANRx == before.SocketCANRx {
		t.Fatalf("expected SocketCANRx to increase")
	}
	if after.Errors == before.Errors {
		t.Fatalf("expected a read error after the last frame")
	}
	cancel()
	cleanup()
	_ = g.Wait()
}

func TestInitBackendUnknown(t *testing.T) {
	var g errgroup.Group
	if _, _, err := initBackend(context.Background(), &appConfig{backend: "tcp"}, hub.New(), testLogger(), &g); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
