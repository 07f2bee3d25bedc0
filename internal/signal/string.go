package signal

import (
	"encoding/binary"
	"fmt"

	"github.com/kstaniek/go-canframe/internal/bitfield"
	"github.com/kstaniek/go-canframe/internal/frame"
)

// String is a text signal: a run of whole bytes holding characters. Scale,
// offset and limits do not apply.
type String struct {
	name   string
	layout bitfield.Layout
	unit   string
	spn    uint32
}

// NewString builds a text signal. The field must start on a byte boundary
// and span whole bytes.
func NewString(name string, layout bitfield.Layout, opts ...Option) (String, error) {
	o := collect(opts)
	if layout.Length == 0 || layout.Length%8 != 0 || layout.Start%8 != 0 {
		return String{}, fmt.Errorf("%w: %s: text field start %d length %d is not byte aligned",
			ErrInvalidArgument, name, layout.Start, layout.Length)
	}
	return String{name: name, layout: layout, unit: o.unit, spn: o.spn}, nil
}

// MustString is NewString for generated code.
func MustString(name string, layout bitfield.Layout, opts ...Option) String {
	s, err := NewString(name, layout, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s String) Name() string            { return s.name }
func (s String) Unit() string            { return s.unit }
func (s String) SPN() uint32             { return s.spn }
func (s String) Layout() bitfield.Layout { return s.layout }

// Offset is the index of the first byte of the field.
func (s String) Offset() int { return int(s.layout.Start / 8) }

// Size is the field width in bytes.
func (s String) Size() int { return int(s.layout.Length / 8) }

func (s String) field(f *frame.Frame) []byte {
	off := s.Offset()
	return f.Buffer()[off : off+s.Size()]
}

// AppendRaw appends the text held in f. Reading stops at a NUL byte, at
// 0xFF (erased flash) or at the end of the field.
func (s String) AppendRaw(dst []byte, f *frame.Frame) []byte {
	for _, c := range s.field(f) {
		if c == 0 || c == 0xFF {
			break
		}
		dst = append(dst, c)
	}
	return dst
}

func (s String) Raw(f *frame.Frame) string  { return string(s.AppendRaw(nil, f)) }
func (s String) Real(f *frame.Frame) string { return s.Raw(f) }
func (s String) Decode(raw string) string   { return raw }

// Encode packs the first eight bytes of v into an integer, first byte
// lowest, zero padded.
func (s String) Encode(v string) uint64 {
	var b [8]byte
	copy(b[:], v)
	return binary.LittleEndian.Uint64(b[:])
}

// RawInRange accepts every value: text has no raw domain.
func (s String) RawInRange(uint64) bool { return true }

func (s String) InRange(v string) bool { return s.RawInRange(s.Encode(v)) }

// Set clears the field and copies as much of v as fits. Longer text is
// truncated.
func (s String) Set(f *frame.Frame, v string) bool {
	if !s.InRange(v) {
		return false
	}
	fld := s.field(f)
	clear(fld)
	copy(fld, v)
	return true
}

// Clear zeroes the field.
func (s String) Clear(f *frame.Frame) { clear(s.field(f)) }

// AppendFormat appends the text and, for units other than the text markers,
// the unit.
func (s String) AppendFormat(dst []byte, f *frame.Frame) []byte {
	dst = s.AppendRaw(dst, f)
	if showUnit(s.unit) {
		dst = append(dst, ' ')
		dst = append(dst, s.unit...)
	}
	return dst
}

func (s String) Format(f *frame.Frame) string { return string(s.AppendFormat(nil, f)) }
