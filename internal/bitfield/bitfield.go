// Package bitfield moves signal bits into and out of a CAN frame buffer.
//
// Every field is handled one overlapping buffer byte at a time with the four
// shift/mask primitives below. Layouts use DBC numbering: little endian is
// Intel (start bit is the LSB), big endian is Motorola sawtooth (start bit is
// the MSB).
package bitfield

import (
	"errors"
	"fmt"
)

// ByteOrder selects how a layout's start bit and length map onto bytes.
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (o ByteOrder) String() string {
	switch o {
	case LittleEndian:
		return "little_endian"
	case BigEndian:
		return "big_endian"
	default:
		return fmt.Sprintf("ByteOrder(%d)", uint8(o))
	}
}

// MaxNumericLength is the widest field Extract and Insert accept.
const MaxNumericLength = 64

// ErrInvalidLayout is returned when a layout cannot describe a field.
var ErrInvalidLayout = errors.New("bitfield: invalid layout")

// PackLeftShift places the low bits of value at shift within one buffer byte.
func PackLeftShift(value uint64, shift uint, mask uint8) uint8 {
	return uint8((value << shift) & uint64(mask))
}

// PackRightShift places bits shift.. of value into one buffer byte.
func PackRightShift(value uint64, shift uint, mask uint8) uint8 {
	return uint8((value >> shift) & uint64(mask))
}

// UnpackLeftShift lifts the masked bits of b to bit position shift.
func UnpackLeftShift(b uint8, shift uint, mask uint8) uint64 {
	return uint64(b&mask) << shift
}

// UnpackRightShift lowers the masked bits of b by shift.
func UnpackRightShift(b uint8, shift uint, mask uint8) uint64 {
	return uint64(b&mask) >> shift
}

// Layout locates a field inside a frame buffer.
type Layout struct {
	Start  uint16 // DBC start bit
	Length uint16 // bits
	Order  ByteOrder
	Signed bool
}

// Segment is the part of a field stored in one buffer byte.
// A non-negative Shift packs with a left shift and unpacks with a right
// shift; a negative Shift uses the opposite directions by -Shift bits.
type Segment struct {
	Index int
	Shift int
	Mask  uint8
}

// walker yields segments without allocating.
type walker struct {
	order  ByteOrder
	length int
	index  int
	pos    int
	left   int
}

func (l Layout) walk() walker {
	return walker{
		order:  l.Order,
		length: int(l.Length),
		index:  int(l.Start / 8),
		pos:    int(l.Start % 8),
		left:   int(l.Length),
	}
}

func (w *walker) next() (Segment, bool) {
	if w.left <= 0 {
		return Segment{}, false
	}
	var n, shift, mask int
	if w.order == BigEndian {
		if w.left >= w.pos+1 {
			n = w.pos + 1
			w.pos = 7
			shift = -(w.left - n)
			mask = 1<<n - 1
		} else {
			n = w.left
			shift = w.pos - n + 1
			mask = (1<<n - 1) << shift
		}
	} else {
		shift = w.left - w.length + w.pos
		if w.left >= 8-w.pos {
			n = 8 - w.pos
			mask = (1<<n - 1) << w.pos
			w.pos = 0
		} else {
			n = w.left
			mask = (1<<n - 1) << w.pos
		}
	}
	s := Segment{Index: w.index, Shift: shift, Mask: uint8(mask)}
	w.left -= n
	w.index++
	return s, true
}

// Segments lists the per-byte segments of l in generation order.
func (l Layout) Segments() []Segment {
	var out []Segment
	w := l.walk()
	for s, ok := w.next(); ok; s, ok = w.next() {
		out = append(out, s)
	}
	return out
}

// Size is the number of buffer bytes needed to hold the field,
// counted from byte 0.
func (l Layout) Size() int {
	size := 0
	w := l.walk()
	for s, ok := w.next(); ok; s, ok = w.next() {
		if s.Index+1 > size {
			size = s.Index + 1
		}
	}
	return size
}

// Validate checks that l is non-empty, that numeric layouts fit 64 bits and
// that the field lies within capacity bytes.
func (l Layout) Validate(capacity int, numeric bool) error {
	if l.Length == 0 {
		return fmt.Errorf("%w: zero length", ErrInvalidLayout)
	}
	if numeric && l.Length > MaxNumericLength {
		return fmt.Errorf("%w: length %d exceeds %d bits", ErrInvalidLayout, l.Length, MaxNumericLength)
	}
	if l.Order != LittleEndian && l.Order != BigEndian {
		return fmt.Errorf("%w: %v", ErrInvalidLayout, l.Order)
	}
	if sz := l.Size(); sz > capacity {
		return fmt.Errorf("%w: needs %d bytes, frame holds %d", ErrInvalidLayout, sz, capacity)
	}
	return nil
}

// Extract assembles the raw bits of l from buf, zero extended.
// buf must hold at least l.Size() bytes.
func Extract(buf []byte, l Layout) uint64 {
	var v uint64
	w := l.walk()
	for s, ok := w.next(); ok; s, ok = w.next() {
		if s.Shift < 0 {
			v |= UnpackLeftShift(buf[s.Index], uint(-s.Shift), s.Mask)
		} else {
			v |= UnpackRightShift(buf[s.Index], uint(s.Shift), s.Mask)
		}
	}
	return v
}

// Clear zeroes the bits of l in buf and leaves every other bit alone.
func Clear(buf []byte, l Layout) {
	w := l.walk()
	for s, ok := w.next(); ok; s, ok = w.next() {
		buf[s.Index] &^= s.Mask
	}
}

// Insert replaces the bits of l in buf with the low l.Length bits of v.
func Insert(buf []byte, l Layout, v uint64) {
	w := l.walk()
	for s, ok := w.next(); ok; s, ok = w.next() {
		var b uint8
		if s.Shift < 0 {
			b = PackRightShift(v, uint(-s.Shift), s.Mask)
		} else {
			b = PackLeftShift(v, uint(s.Shift), s.Mask)
		}
		buf[s.Index] = buf[s.Index]&^s.Mask | b
	}
}

// SignExtend interprets the low length bits of v as two's complement.
func SignExtend(v uint64, length uint16) int64 {
	if length == 0 || length >= 64 {
		return int64(v)
	}
	if v&(1<<(length-1)) != 0 {
		v |= ^uint64(0) << length
	}
	return int64(v)
}
