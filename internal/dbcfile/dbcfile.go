// Package dbcfile builds a message catalog from a DBC database.
//
// Parsing is done by go.einride.tech/can/pkg/dbc. Signals whose unit is
// "string" or "str" become text signals; everything else is numeric with the
// narrowest raw type that holds the field. Multiplexed signals are skipped.
package dbcfile

import (
	"fmt"
	"math"
	"os"

	"go.einride.tech/can/pkg/dbc"

	"github.com/kstaniek/go-canframe/internal/bitfield"
	"github.com/kstaniek/go-canframe/internal/frame"
	"github.com/kstaniek/go-canframe/internal/logging"
	"github.com/kstaniek/go-canframe/internal/message"
	"github.com/kstaniek/go-canframe/internal/signal"
)

// Attribute names read from BA_ and BA_DEF_DEF_ entries.
const (
	AttrCycleTime = "GenMsgCycleTime"
	AttrSPN       = "SPN"
)

// Load reads and parses the database at path.
func Load(path string) (*message.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dbcfile: %w", err)
	}
	return Parse(path, data)
}

type sigKey struct {
	id   dbc.MessageID
	name dbc.Identifier
}

// index collects the per-object side tables of a file.
type index struct {
	messages         []*dbc.MessageDef
	cycleTime        map[dbc.MessageID]uint32
	defaultCycleTime uint32
	spn              map[sigKey]uint32
	choices          map[sigKey][]signal.Choice
}

func attrValue(d *dbc.AttributeValueForObjectDef) float64 {
	if d.IntValue != 0 {
		return float64(d.IntValue)
	}
	return d.FloatValue
}

func collect(defs []dbc.Def) index {
	ix := index{
		cycleTime: map[dbc.MessageID]uint32{},
		spn:       map[sigKey]uint32{},
		choices:   map[sigKey][]signal.Choice{},
	}
	for _, def := range defs {
		switch d := def.(type) {
		case *dbc.MessageDef:
			ix.messages = append(ix.messages, d)
		case *dbc.AttributeDefaultValueDef:
			if d.AttributeName == AttrCycleTime {
				v := float64(d.DefaultIntValue)
				if v == 0 {
					v = d.DefaultFloatValue
				}
				ix.defaultCycleTime = uint32(max(v, 0))
			}
		case *dbc.AttributeValueForObjectDef:
			switch {
			case d.ObjectType == dbc.ObjectTypeMessage && d.AttributeName == AttrCycleTime:
				ix.cycleTime[d.MessageID] = uint32(max(attrValue(d), 0))
			case d.ObjectType == dbc.ObjectTypeSignal && d.AttributeName == AttrSPN:
				ix.spn[sigKey{d.MessageID, d.SignalName}] = uint32(max(attrValue(d), 0))
			}
		case *dbc.ValueDescriptionsDef:
			if d.SignalName == "" {
				continue
			}
			k := sigKey{d.MessageID, d.SignalName}
			for _, vd := range d.ValueDescriptions {
				ix.choices[k] = append(ix.choices[k], signal.Choice{Value: int64(vd.Value), Name: vd.Description})
			}
		}
	}
	return ix
}

// Parse builds a catalog from DBC source text. name is used in error
// positions.
func Parse(name string, data []byte) (*message.Catalog, error) {
	p := dbc.NewParser(name, data)
	if err := p.Parse(); err != nil {
		return nil, fmt.Errorf("dbcfile: %w", err)
	}
	ix := collect(p.Defs())
	defs := make([]*message.Definition, 0, len(ix.messages))
	for _, md := range ix.messages {
		d, err := ix.definition(md)
		if err != nil {
			return nil, fmt.Errorf("dbcfile: %s: %w", name, err)
		}
		defs = append(defs, d)
	}
	c, err := message.NewCatalog(defs...)
	if err != nil {
		return nil, fmt.Errorf("dbcfile: %s: %w", name, err)
	}
	logging.For("dbc").Debug("dbc_loaded", "file", name, "messages", c.Len())
	return c, nil
}

func (ix index) definition(md *dbc.MessageDef) (*message.Definition, error) {
	ct, ok := ix.cycleTime[md.MessageID]
	if !ok {
		ct = ix.defaultCycleTime
	}
	fd := frame.Definition{
		ID:        md.MessageID.ToCAN(),
		Name:      string(md.Name),
		Capacity:  uint32(md.Size),
		Extended:  md.MessageID.IsExtended(),
		CycleTime: ct,
	}
	sigs := make([]message.Signal, 0, len(md.Signals))
	for _, sd := range md.Signals {
		if sd.IsMultiplexed {
			logging.For("dbc").Debug("dbc_signal_skipped", "message", fd.Name, "signal", sd.Name, "reason", "multiplexed")
			continue
		}
		s, err := ix.signal(md.MessageID, sd)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, s)
	}
	return message.NewDefinition(fd, sigs...)
}

func (ix index) signal(id dbc.MessageID, sd dbc.SignalDef) (message.Signal, error) {
	if sd.StartBit > math.MaxUint16 || sd.Size > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %s: start %d size %d", signal.ErrInvalidArgument, sd.Name, sd.StartBit, sd.Size)
	}
	k := sigKey{id, sd.Name}
	layout := bitfield.Layout{
		Start:  uint16(sd.StartBit),
		Length: uint16(sd.Size),
		Signed: sd.IsSigned,
	}
	if sd.IsBigEndian {
		layout.Order = bitfield.BigEndian
	}
	name := string(sd.Name)
	opts := []signal.Option{signal.WithUnit(sd.Unit)}
	if spn, ok := ix.spn[k]; ok {
		opts = append(opts, signal.WithSPN(spn))
	}
	if signal.IsText(sd.Unit) {
		return signal.NewString(name, layout, opts...)
	}
	opts = append(opts,
		signal.WithScale(sd.Factor, sd.Offset),
		signal.WithLimits(sd.Minimum, sd.Maximum),
		signal.WithChoices(ix.choices[k]...),
	)
	return Numeric(name, layout, opts...)
}

// Numeric builds a signal.Signal with the narrowest raw type for layout.
func Numeric(name string, layout bitfield.Layout, opts ...signal.Option) (message.Signal, error) {
	n := layout.Length
	switch {
	case n <= 8 && layout.Signed:
		return signal.New[int8](name, layout, opts...)
	case n <= 8:
		return signal.New[uint8](name, layout, opts...)
	case n <= 16 && layout.Signed:
		return signal.New[int16](name, layout, opts...)
	case n <= 16:
		return signal.New[uint16](name, layout, opts...)
	case n <= 32 && layout.Signed:
		return signal.New[int32](name, layout, opts...)
	case n <= 32:
		return signal.New[uint32](name, layout, opts...)
	case layout.Signed:
		return signal.New[int64](name, layout, opts...)
	default:
		return signal.New[uint64](name, layout, opts...)
	}
}
