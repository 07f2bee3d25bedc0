// Package message ties a frame to its ordered set of signals and exposes
// name-addressed access with error results.
package message

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kstaniek/go-canframe/internal/bitfield"
	"github.com/kstaniek/go-canframe/internal/frame"
	"github.com/kstaniek/go-canframe/internal/logging"
	"github.com/kstaniek/go-canframe/internal/metrics"
	"github.com/kstaniek/go-canframe/internal/signal"
)

var (
	ErrUnknownSignal  = errors.New("message: unknown signal")
	ErrUnknownMessage = errors.New("message: unknown message")
	ErrOutOfRange     = errors.New("message: value out of range")
	ErrWrongKind      = errors.New("message: wrong signal kind")
	ErrPayloadTooLong = errors.New("message: payload does not fit a CAN frame")
	ErrInvalid        = errors.New("message: invalid definition")
)

// Signal is what every signal in a message provides.
type Signal interface {
	Name() string
	Unit() string
	SPN() uint32
	Layout() bitfield.Layout
	Clear(*frame.Frame)
	AppendFormat([]byte, *frame.Frame) []byte
}

// Numeric is implemented by signal.Signal[R] for every raw type.
type Numeric interface {
	Signal
	Real(*frame.Frame) float64
	InRange(float64) bool
	Set(*frame.Frame, float64) bool
}

// Text is implemented by signal.String.
type Text interface {
	Signal
	Real(*frame.Frame) string
	Set(*frame.Frame, string) bool
	Offset() int
	Size() int
}

// enumerated is the optional value table view of a numeric signal.
type enumerated interface {
	Choices() []signal.Choice
	Scale() float64
	Offset() float64
}

// Definition is a message layout: frame identity plus signals in declared order.
type Definition struct {
	Frame   frame.Definition
	signals []Signal
	index   map[string]int
}

// NewDefinition checks that signal names are unique and that every field
// fits the declared capacity.
func NewDefinition(fd frame.Definition, sigs ...Signal) (*Definition, error) {
	d := &Definition{Frame: fd, signals: sigs, index: make(map[string]int, len(sigs))}
	for i, s := range sigs {
		if _, dup := d.index[s.Name()]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate signal %s", ErrInvalid, fd.Name, s.Name())
		}
		d.index[s.Name()] = i
		switch v := s.(type) {
		case Text:
			if end := v.Offset() + v.Size(); end > int(fd.Capacity) {
				return nil, fmt.Errorf("%w: %s.%s: text field ends at byte %d, capacity is %d",
					ErrInvalid, fd.Name, s.Name(), end, fd.Capacity)
			}
		case Numeric:
			if err := s.Layout().Validate(int(fd.Capacity), true); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %w", ErrInvalid, fd.Name, s.Name(), err)
			}
		default:
			return nil, fmt.Errorf("%w: %s.%s: %T is neither numeric nor text", ErrWrongKind, fd.Name, s.Name(), s)
		}
	}
	return d, nil
}

// MustDefinition is NewDefinition for generated code.
func MustDefinition(fd frame.Definition, sigs ...Signal) *Definition {
	d, err := NewDefinition(fd, sigs...)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Definition) Name() string { return d.Frame.Name }
func (d *Definition) ID() uint32   { return d.Frame.ID }

// Signals returns the signals in declared order.
func (d *Definition) Signals() []Signal { return d.signals }

// Signal looks a signal up by name.
func (d *Definition) Signal(name string) (Signal, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.signals[i], true
}

// New returns a message over a fresh zeroed frame.
func (d *Definition) New() *Message { return &Message{def: d, f: frame.New(d.Frame)} }

// Borrow returns a message that reads and writes buf in place.
func (d *Definition) Borrow(buf []byte, size int) (*Message, error) {
	f, err := frame.Borrow(d.Frame, buf, size)
	if err != nil {
		return nil, err
	}
	return &Message{def: d, f: f}, nil
}

// Own returns a message that takes over buf.
func (d *Definition) Own(buf []byte, size int) (*Message, error) {
	f, err := frame.Own(d.Frame, buf, size)
	if err != nil {
		return nil, err
	}
	return &Message{def: d, f: f}, nil
}

// Message is a frame interpreted through a Definition.
type Message struct {
	def *Definition
	f   *frame.Frame
}

func (m *Message) Definition() *Definition { return m.def }
func (m *Message) Frame() *frame.Frame     { return m.f }
func (m *Message) Name() string            { return m.def.Frame.Name }

func (m *Message) numeric(name string) (Numeric, error) {
	s, ok := m.def.Signal(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownSignal, m.Name(), name)
	}
	n, ok := s.(Numeric)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not numeric", ErrWrongKind, m.Name(), name)
	}
	return n, nil
}

func (m *Message) text(name string) (Text, error) {
	s, ok := m.def.Signal(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownSignal, m.Name(), name)
	}
	t, ok := s.(Text)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not text", ErrWrongKind, m.Name(), name)
	}
	return t, nil
}

// Set writes a physical value. Out of range values leave the frame unchanged.
func (m *Message) Set(name string, v float64) error {
	n, err := m.numeric(name)
	if err != nil {
		return err
	}
	if !n.Set(m.f, v) {
		metrics.IncRangeReject()
		logging.L().Debug("signal_out_of_range", "message", m.Name(), "signal", name, "value", v)
		return fmt.Errorf("%w: %s.%s = %v", ErrOutOfRange, m.Name(), name, v)
	}
	return nil
}

// SetText writes a text signal, truncated to the field.
func (m *Message) SetText(name, v string) error {
	t, err := m.text(name)
	if err != nil {
		return err
	}
	if !t.Set(m.f, v) {
		metrics.IncRangeReject()
		return fmt.Errorf("%w: %s.%s = %q", ErrOutOfRange, m.Name(), name, v)
	}
	return nil
}

// Assign parses v for the kind of signal name: text is stored as is,
// numeric signals accept a number, true/false, or a value table name.
func (m *Message) Assign(name, v string) error {
	s, ok := m.def.Signal(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownSignal, m.Name(), name)
	}
	if _, ok := s.(Text); ok {
		return m.SetText(name, v)
	}
	x, err := parseNumber(s, v)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", m.Name(), name, err)
	}
	return m.Set(name, x)
}

func parseNumber(s Signal, v string) (float64, error) {
	v = strings.TrimSpace(v)
	if x, err := strconv.ParseFloat(v, 64); err == nil {
		return x, nil
	}
	switch strings.ToLower(v) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	if e, ok := s.(enumerated); ok {
		for _, c := range e.Choices() {
			if strings.EqualFold(c.Name, v) || signal.EnumLabel(c.Name) == v {
				return float64(c.Value)*e.Scale() + e.Offset(), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: cannot parse %q", ErrOutOfRange, v)
}

// Value reads a numeric signal.
func (m *Message) Value(name string) (float64, error) {
	n, err := m.numeric(name)
	if err != nil {
		return 0, err
	}
	return n.Real(m.f), nil
}

// Text reads a text signal.
func (m *Message) Text(name string) (string, error) {
	t, err := m.text(name)
	if err != nil {
		return "", err
	}
	return t.Real(m.f), nil
}

// ClearSignal zeroes one signal's bits.
func (m *Message) ClearSignal(name string) error {
	s, ok := m.def.Signal(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownSignal, m.Name(), name)
	}
	s.Clear(m.f)
	return nil
}

// Clear zeroes the whole frame.
func (m *Message) Clear() { m.f.Clear() }

// Values returns every signal keyed by name: float64 for numeric signals,
// string for text.
func (m *Message) Values() map[string]any {
	out := make(map[string]any, len(m.def.signals))
	for _, s := range m.def.signals {
		switch v := s.(type) {
		case Numeric:
			out[s.Name()] = v.Real(m.f)
		case Text:
			out[s.Name()] = v.Real(m.f)
		}
	}
	return out
}

// AppendFormat appends "Name: value" for each signal in declared order,
// separated by two spaces.
func (m *Message) AppendFormat(dst []byte) []byte {
	for i, s := range m.def.signals {
		if i > 0 {
			dst = append(dst, "  "...)
		}
		dst = append(dst, s.Name()...)
		dst = append(dst, ": "...)
		dst = s.AppendFormat(dst, m.f)
	}
	return dst
}

func (m *Message) String() string { return string(m.AppendFormat(nil)) }
