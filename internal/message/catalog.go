package message

import (
	"fmt"
	"slices"

	"go.einride.tech/can"

	"github.com/kstaniek/go-canframe/internal/frame"
	"github.com/kstaniek/go-canframe/internal/j1939"
	"github.com/kstaniek/go-canframe/internal/logging"
	"github.com/kstaniek/go-canframe/internal/metrics"
)

// extendedKey separates standard and extended ids that share a value.
const extendedKey = 1 << 31

func key(id uint32, extended bool) uint32 {
	if extended {
		return id | extendedKey
	}
	return id
}

// Catalog indexes message definitions by bus id and by name.
type Catalog struct {
	byID   map[uint32]*Definition
	byName map[string]*Definition
	names  []string
}

// NewCatalog rejects duplicate ids and duplicate names.
func NewCatalog(defs ...*Definition) (*Catalog, error) {
	c := &Catalog{
		byID:   make(map[uint32]*Definition, len(defs)),
		byName: make(map[string]*Definition, len(defs)),
	}
	for _, d := range defs {
		k := key(d.Frame.ID, d.Frame.Extended)
		if prev, dup := c.byID[k]; dup {
			return nil, fmt.Errorf("%w: id 0x%X used by %s and %s", ErrInvalid, d.Frame.ID, prev.Name(), d.Name())
		}
		if _, dup := c.byName[d.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate message %s", ErrInvalid, d.Name())
		}
		c.byID[k] = d
		c.byName[d.Name()] = d
		c.names = append(c.names, d.Name())
	}
	slices.Sort(c.names)
	return c, nil
}

func (c *Catalog) Len() int { return len(c.names) }

// Names lists message names in sorted order.
func (c *Catalog) Names() []string { return slices.Clone(c.names) }

func (c *Catalog) ByID(id uint32, extended bool) (*Definition, bool) {
	d, ok := c.byID[key(id, extended)]
	return d, ok
}

// ByName returns ErrUnknownMessage when name is not defined.
func (c *Catalog) ByName(name string) (*Definition, error) {
	d, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, name)
	}
	return d, nil
}

// Decode copies a bus frame into a new message of the matching definition.
// Frames shorter than the capacity leave the remaining bytes zero.
func (c *Catalog) Decode(fr can.Frame) (*Message, error) {
	d, ok := c.ByID(fr.ID, fr.IsExtended)
	if !ok {
		metrics.IncUnknown()
		return nil, fmt.Errorf("%w: id 0x%X", ErrUnknownMessage, fr.ID)
	}
	m, err := FromBus(d, fr)
	if err != nil {
		metrics.IncError(metrics.ErrDecode)
		return nil, err
	}
	metrics.IncDecoded()
	logging.L().Debug("frame_decoded", "message", d.Name(), "id", fr.ID, "data", m.f.HexString())
	return m, nil
}

// BusFrame packs the message payload into a classic CAN frame.
func (m *Message) BusFrame() (can.Frame, error) {
	if !m.f.IsSingleFrame() || m.f.DataLength() > j1939.SingleFrameCapacity {
		return can.Frame{}, fmt.Errorf("%w: %s holds %d bytes", ErrPayloadTooLong, m.Name(), m.f.Capacity())
	}
	fr := can.Frame{
		ID:         m.f.ID(),
		Length:     uint8(m.f.DataLength()),
		IsExtended: m.f.Extended(),
	}
	copy(fr.Data[:], m.f.Payload())
	if err := fr.Validate(); err != nil {
		return can.Frame{}, fmt.Errorf("%s: %w", m.Name(), err)
	}
	metrics.IncEncoded()
	return fr, nil
}

// FromBus wraps a received frame without a database lookup.
func FromBus(d *Definition, fr can.Frame) (*Message, error) {
	if fr.ID != d.Frame.ID || fr.IsExtended != d.Frame.Extended {
		return nil, fmt.Errorf("%w: frame 0x%X is not %s", frame.ErrInvalidArgument, fr.ID, d.Name())
	}
	if err := fr.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", frame.ErrInvalidArgument, err)
	}
	n := int(fr.Length)
	buf := make([]byte, max(int(d.Frame.Capacity), n))
	copy(buf, fr.Data[:n])
	return d.Own(buf, n)
}
