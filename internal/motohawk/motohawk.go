// Package motohawk is the typed form of the motohawk example database:
// one Go type per message with a getter, setter and clear per signal.
package motohawk

import (
	"github.com/kstaniek/go-canframe/internal/bitfield"
	"github.com/kstaniek/go-canframe/internal/frame"
	"github.com/kstaniek/go-canframe/internal/message"
	"github.com/kstaniek/go-canframe/internal/signal"
)

// ExampleMessageFrame identifies the template message of MotoHawk models.
var ExampleMessageFrame = frame.Definition{
	ID:       0x1F0,
	Name:     "ExampleMessage",
	Capacity: 8,
}

var (
	// Range: - (0 .. 1), scale 1, offset 0.
	ExampleMessageEnable = signal.Must[uint8]("Enable",
		bitfield.Layout{Start: 7, Length: 1, Order: bitfield.BigEndian},
		signal.WithUnit("-"),
		signal.WithChoices(signal.Choice{Value: 0, Name: "Disabled"}, signal.Choice{Value: 1, Name: "Enabled"}))

	// Range: 0 .. 50 (0 .. 5 m), scale 0.1, offset 0.
	ExampleMessageAverageRadius = signal.Must[uint8]("AverageRadius",
		bitfield.Layout{Start: 6, Length: 6, Order: bitfield.BigEndian},
		signal.WithScale(0.1, 0), signal.WithLimits(0, 5), signal.WithUnit("m"))

	// Range: -2048 .. 2047 (229.52 .. 270.47 degK), scale 0.01, offset 250.
	ExampleMessageTemperature = signal.Must[int16]("Temperature",
		bitfield.Layout{Start: 0, Length: 12, Order: bitfield.BigEndian, Signed: true},
		signal.WithScale(0.01, 250), signal.WithLimits(229.52, 270.47), signal.WithUnit("degK"))

	ExampleMessageDefinition = message.MustDefinition(ExampleMessageFrame,
		ExampleMessageEnable, ExampleMessageAverageRadius, ExampleMessageTemperature)
)

// Enable values.
const (
	ExampleMessageEnableDisabled = 0
	ExampleMessageEnableEnabled  = 1
)

type ExampleMessage struct {
	msg *message.Message
}

// NewExampleMessage returns a message over a zeroed buffer.
func NewExampleMessage() *ExampleMessage {
	return &ExampleMessage{msg: ExampleMessageDefinition.New()}
}

// BorrowExampleMessage reads and writes buf in place.
func BorrowExampleMessage(buf []byte, size int) (*ExampleMessage, error) {
	m, err := ExampleMessageDefinition.Borrow(buf, size)
	if err != nil {
		return nil, err
	}
	return &ExampleMessage{msg: m}, nil
}

// OwnExampleMessage takes over buf.
func OwnExampleMessage(buf []byte, size int) (*ExampleMessage, error) {
	m, err := ExampleMessageDefinition.Own(buf, size)
	if err != nil {
		return nil, err
	}
	return &ExampleMessage{msg: m}, nil
}

func (m *ExampleMessage) Message() *message.Message { return m.msg }
func (m *ExampleMessage) Frame() *frame.Frame       { return m.msg.Frame() }

func (m *ExampleMessage) Enable() float64 { return ExampleMessageEnable.Real(m.Frame()) }
func (m *ExampleMessage) EnableRaw() uint8 {
	return ExampleMessageEnable.Raw(m.Frame())
}
func (m *ExampleMessage) SetEnable(v float64) bool { return ExampleMessageEnable.Set(m.Frame(), v) }
func (m *ExampleMessage) ClearEnable()             { ExampleMessageEnable.Clear(m.Frame()) }

func (m *ExampleMessage) AverageRadius() float64 { return ExampleMessageAverageRadius.Real(m.Frame()) }
func (m *ExampleMessage) AverageRadiusRaw() uint8 {
	return ExampleMessageAverageRadius.Raw(m.Frame())
}
func (m *ExampleMessage) SetAverageRadius(v float64) bool {
	return ExampleMessageAverageRadius.Set(m.Frame(), v)
}
func (m *ExampleMessage) ClearAverageRadius() { ExampleMessageAverageRadius.Clear(m.Frame()) }

func (m *ExampleMessage) Temperature() float64 { return ExampleMessageTemperature.Real(m.Frame()) }
func (m *ExampleMessage) TemperatureRaw() int16 {
	return ExampleMessageTemperature.Raw(m.Frame())
}
func (m *ExampleMessage) SetTemperature(v float64) bool {
	return ExampleMessageTemperature.Set(m.Frame(), v)
}
func (m *ExampleMessage) ClearTemperature() { ExampleMessageTemperature.Clear(m.Frame()) }

// String renders every signal, e.g.
// "Enable: 1  AverageRadius: 3.2 m  Temperature: 250.55 degK".
func (m *ExampleMessage) String() string { return m.msg.String() }
