// Package frame holds the byte buffer of one CAN message together with its
// identity. Signals read and write through the buffer in place.
//
// Frames do no locking; callers serialize access to a frame.
package frame

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/kstaniek/go-canframe/internal/j1939"
)

// ErrInvalidArgument is wrapped by every construction error.
var ErrInvalidArgument = errors.New("frame: invalid argument")

// Definition is the static identity of a message.
type Definition struct {
	ID        uint32
	Name      string
	Capacity  uint32 // declared payload length in bytes
	Extended  bool
	CycleTime uint32 // ms, 0 when not specified
}

// Ownership records how a Frame came by its buffer.
type Ownership uint8

const (
	Allocated   Ownership = iota // zeroed buffer created by New
	Transferred                  // caller buffer handed over with Own
	Borrowed                     // caller memory aliased with Borrow
)

func (o Ownership) String() string {
	switch o {
	case Allocated:
		return "allocated"
	case Transferred:
		return "transferred"
	case Borrowed:
		return "borrowed"
	default:
		return fmt.Sprintf("Ownership(%d)", uint8(o))
	}
}

// Frame is a message buffer plus the identity it was declared with.
type Frame struct {
	def        Definition
	pgn        uint32
	mem        []byte // at least def.Capacity bytes
	dataLength int
	owner      Ownership
}

// New allocates a zeroed buffer of d.Capacity bytes.
func New(d Definition) *Frame {
	return &Frame{
		def:        d,
		pgn:        j1939.PGN(d.ID, d.Extended),
		mem:        make([]byte, d.Capacity),
		dataLength: int(d.Capacity),
		owner:      Allocated,
	}
}

// Own takes over buf. The caller must not use buf afterwards. size is the
// number of valid payload bytes.
func Own(d Definition, buf []byte, size int) (*Frame, error) {
	return wrap(d, buf, size, Transferred)
}

// Borrow aliases buf: signal writes land in the caller's memory. size is the
// number of valid payload bytes.
func Borrow(d Definition, buf []byte, size int) (*Frame, error) {
	return wrap(d, buf, size, Borrowed)
}

// MustBorrow is Borrow for statically sized buffers; it panics on misuse.
func MustBorrow(d Definition, buf []byte, size int) *Frame {
	f, err := Borrow(d, buf, size)
	if err != nil {
		panic(err)
	}
	return f
}

func wrap(d Definition, buf []byte, size int, owner Ownership) (*Frame, error) {
	if buf == nil {
		return nil, fmt.Errorf("%w: nil buffer for %s", ErrInvalidArgument, d.Name)
	}
	if len(buf) < int(d.Capacity) {
		return nil, fmt.Errorf("%w: %s buffer holds %d bytes, capacity is %d", ErrInvalidArgument, d.Name, len(buf), d.Capacity)
	}
	if size < 0 || size > len(buf) {
		return nil, fmt.Errorf("%w: %s data length %d outside buffer of %d", ErrInvalidArgument, d.Name, size, len(buf))
	}
	return &Frame{
		def:        d,
		pgn:        j1939.PGN(d.ID, d.Extended),
		mem:        buf,
		dataLength: size,
		owner:      owner,
	}, nil
}

func (f *Frame) ID() uint32             { return f.def.ID }
func (f *Frame) Name() string           { return f.def.Name }
func (f *Frame) Capacity() uint32       { return f.def.Capacity }
func (f *Frame) Extended() bool         { return f.def.Extended }
func (f *Frame) Standard() bool         { return !f.def.Extended }
func (f *Frame) CycleTime() uint32      { return f.def.CycleTime }
func (f *Frame) Definition() Definition { return f.def }
func (f *Frame) Ownership() Ownership   { return f.owner }

// PGN is fixed at construction; see j1939.PGN.
func (f *Frame) PGN() uint32 { return f.pgn }

// Priority is the J1939 priority encoded in the id.
func (f *Frame) Priority() uint8 { return j1939.Priority(f.def.ID) }

// DataLength is the number of payload bytes held, which may be less than
// (or, for borrowed buffers, more than) the capacity.
func (f *Frame) DataLength() int { return f.dataLength }

// Buffer is the writable capacity-length view used for signal access. It is
// clipped so appends never write past the declared capacity.
func (f *Frame) Buffer() []byte { return f.mem[:f.def.Capacity:f.def.Capacity] }

// Payload is the data-length view of the buffer. Callers must not modify it.
func (f *Frame) Payload() []byte { return f.mem[:f.dataLength:f.dataLength] }

// IsSingleFrame reports whether the payload fits one classic CAN frame.
// Larger messages need a segmented transport, which is not handled here.
func (f *Frame) IsSingleFrame() bool { return f.def.Capacity <= j1939.SingleFrameCapacity }

// Clear zeroes exactly Capacity bytes.
func (f *Frame) Clear() { clear(f.mem[:f.def.Capacity]) }

// HexString renders DataLength bytes as lowercase hex without separators.
func (f *Frame) HexString() string { return hex.EncodeToString(f.Payload()) }

// BinaryString renders DataLength bytes as space separated 8-digit groups.
func (f *Frame) BinaryString() string {
	p := f.Payload()
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(p)*9 - 1)
	for i, c := range p {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%08b", c)
	}
	return b.String()
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s(0x%X)[%s]", f.def.Name, f.def.ID, f.HexString())
}
