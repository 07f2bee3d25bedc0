package motohawk

import (
	"bytes"
	"errors"
	"testing"

	"github.com/kstaniek/go-canframe/internal/frame"
	"github.com/kstaniek/go-canframe/internal/j1939"
)

func TestStructUnpack(t *testing.T) {
	buf := []byte{0xC0, 0x06, 0xE0, 0x00, 0x00, 0x00, 0x00, 0x00}
	orig := bytes.Clone(buf)
	m, err := BorrowExampleMessage(buf, 8)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if m.EnableRaw() != 1 || m.AverageRadiusRaw() != 32 || m.TemperatureRaw() != 55 {
		t.Fatalf("raw got %d %d %d", m.EnableRaw(), m.AverageRadiusRaw(), m.TemperatureRaw())
	}
	if got := m.Frame().HexString(); got != "c006e00000000000" {
		t.Fatalf("hex got %q", got)
	}
	if !bytes.Equal(m.Frame().Buffer(), orig) {
		t.Fatalf("reading changed the buffer")
	}

	if !m.SetEnable(0) || !m.SetAverageRadius(0.5) || !m.SetTemperature(249) {
		t.Fatalf("set failed")
	}
	// writes land in the caller's buffer
	if !bytes.Equal(m.Frame().Buffer(), buf) {
		t.Fatalf("frame and caller buffer diverged")
	}
	if got := m.Frame().HexString(); got != "0bf3800000000000" {
		t.Fatalf("hex after set got %q", got)
	}
	if m.TemperatureRaw() != -100 || m.AverageRadiusRaw() != 5 {
		t.Fatalf("raw after set got %d %d", m.TemperatureRaw(), m.AverageRadiusRaw())
	}
}

func TestStructPack(t *testing.T) {
	m := NewExampleMessage()
	if !m.SetEnable(1) || m.Enable() != 1 {
		t.Fatalf("enable got %v", m.Enable())
	}
	if !m.SetAverageRadius(0.5) || m.Enable() != 1 || m.AverageRadius() != 0.5 {
		t.Fatalf("after radius: enable=%v radius=%v", m.Enable(), m.AverageRadius())
	}
	if !m.SetTemperature(250) || m.Enable() != 1 || m.AverageRadius() != 0.5 || m.Temperature() != 250 {
		t.Fatalf("after temperature: %s", m)
	}
	if got := m.String(); got != "Enable: 1  AverageRadius: 0.5 m  Temperature: 250 degK" {
		t.Fatalf("string got %q", got)
	}
}

func TestOutOfRangeSetKeepsBuffer(t *testing.T) {
	m := NewExampleMessage()
	m.SetTemperature(260)
	before := bytes.Clone(m.Frame().Buffer())
	if m.SetAverageRadius(5.5) || m.SetTemperature(200) || m.SetEnable(2) {
		t.Fatalf("out of range value accepted")
	}
	if !bytes.Equal(before, m.Frame().Buffer()) {
		t.Fatalf("buffer changed: % X -> % X", before, m.Frame().Buffer())
	}
}

func TestClearSignals(t *testing.T) {
	m, err := OwnExampleMessage([]byte{0xC0, 0x06, 0xE0, 0, 0, 0, 0, 0}, 8)
	if err != nil {
		t.Fatalf("own: %v", err)
	}
	if m.Frame().Ownership() != frame.Transferred {
		t.Fatalf("ownership got %v", m.Frame().Ownership())
	}
	m.ClearAverageRadius()
	if m.AverageRadiusRaw() != 0 || m.EnableRaw() != 1 || m.TemperatureRaw() != 55 {
		t.Fatalf("clear radius: %s", m.Frame().HexString())
	}
	m.ClearEnable()
	m.ClearTemperature()
	if got := m.Frame().HexString(); got != "0000000000000000" {
		t.Fatalf("hex got %q", got)
	}
	if m.Enable() != 0 || m.AverageRadius() != 0 || m.Temperature() != 250 {
		t.Fatalf("real after clear: enable=%v radius=%v temperature=%v", m.Enable(), m.AverageRadius(), m.Temperature())
	}
	if got := m.String(); got != "Enable: 0  AverageRadius: 0 m  Temperature: 250 degK" {
		t.Fatalf("string after clear got %q", got)
	}
}

func TestFrameClearZeroesEverySignal(t *testing.T) {
	m := NewExampleMessage()
	m.SetEnable(1)
	m.SetAverageRadius(4.2)
	m.SetTemperature(230)
	m.Frame().Clear()
	if m.EnableRaw() != 0 || m.AverageRadiusRaw() != 0 || m.TemperatureRaw() != 0 {
		t.Fatalf("raw after clear got %d %d %d", m.EnableRaw(), m.AverageRadiusRaw(), m.TemperatureRaw())
	}
	if m.Temperature() != 250 || m.AverageRadius() != 0 || m.Enable() != 0 {
		t.Fatalf("real after clear: %s", m)
	}
}

func TestIdentity(t *testing.T) {
	m := NewExampleMessage()
	f := m.Frame()
	if f.ID() != 0x1F0 || f.Name() != "ExampleMessage" || f.Capacity() != 8 || f.Extended() {
		t.Fatalf("identity got %+v", f.Definition())
	}
	if f.PGN() != j1939.InvalidPGN || !f.IsSingleFrame() {
		t.Fatalf("pgn=0x%X single=%v", f.PGN(), f.IsSingleFrame())
	}
	if m.Message().Name() != "ExampleMessage" {
		t.Fatalf("message name got %q", m.Message().Name())
	}
}

func TestBorrowMisuse(t *testing.T) {
	if _, err := BorrowExampleMessage(nil, 0); !errors.Is(err, frame.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument got %v", err)
	}
	if _, err := BorrowExampleMessage(make([]byte, 4), 4); !errors.Is(err, frame.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument got %v", err)
	}
}

func BenchmarkSetAll(b *testing.B) {
	m := NewExampleMessage()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m.SetEnable(float64(i & 1))
		m.SetAverageRadius(2.5)
		m.SetTemperature(251)
	}
}
