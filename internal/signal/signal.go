// Package signal converts between the raw bits of a CAN signal and its
// physical value.
//
// A Signal is a plain description: name, bit layout, affine transform, unit
// and raw domain. It holds no buffer. Every access takes the frame to read or
// write, so one Signal value serves any number of frames of the same message.
package signal

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"unsafe"

	"github.com/kstaniek/go-canframe/internal/bitfield"
	"github.com/kstaniek/go-canframe/internal/frame"
	"github.com/kstaniek/go-canframe/internal/j1939"
)

// ErrInvalidArgument is wrapped by every construction error.
var ErrInvalidArgument = errors.New("signal: invalid argument")

// Integer is the set of raw storage types.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Choice is one value table entry.
type Choice struct {
	Value int64
	Name  string
}

type options struct {
	scale     float64
	offset    float64
	unit      string
	spn       uint32
	min, max  float64
	hasLimits bool
	choices   []Choice
}

// Option configures a signal at construction.
type Option func(*options)

func WithScale(scale, offset float64) Option {
	return func(o *options) { o.scale, o.offset = scale, offset }
}

// WithUnit sets the data format. "-" means unitless and is stored as "".
func WithUnit(unit string) Option {
	return func(o *options) {
		if unit == "-" {
			unit = ""
		}
		o.unit = unit
	}
}
func WithSPN(spn uint32) Option      { return func(o *options) { o.spn = spn } }
func WithChoices(c ...Choice) Option { return func(o *options) { o.choices = append(o.choices, c...) } }

// WithLimits declares the physical range. [0, 0] means unbounded, as in DBC.
func WithLimits(min, max float64) Option {
	return func(o *options) { o.min, o.max, o.hasLimits = min, max, true }
}

func collect(opts []Option) options {
	o := options{scale: 1, spn: j1939.InvalidSPN}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Signal is a numeric signal stored as R.
type Signal[R Integer] struct {
	name    string
	layout  bitfield.Layout
	scale   float64
	offset  float64
	unit    string
	spn     uint32
	lo, hi  R
	choices []Choice
	labels  []string
}

// New validates the layout against R and builds the raw domain from the bit
// width and the declared limits.
func New[R Integer](name string, layout bitfield.Layout, opts ...Option) (Signal[R], error) {
	o := collect(opts)
	var s Signal[R]
	if err := layout.Validate(math.MaxInt32, true); err != nil {
		return s, fmt.Errorf("%w: %s: %w", ErrInvalidArgument, name, err)
	}
	if w := width[R](); int(layout.Length) > w {
		return s, fmt.Errorf("%w: %s: %d bits do not fit a %d-bit raw type", ErrInvalidArgument, name, layout.Length, w)
	}
	if layout.Signed != signed[R]() {
		return s, fmt.Errorf("%w: %s: raw type signedness does not match layout", ErrInvalidArgument, name)
	}
	if o.scale == 0 || math.IsNaN(o.scale) || math.IsInf(o.scale, 0) {
		return s, fmt.Errorf("%w: %s: scale %v", ErrInvalidArgument, name, o.scale)
	}
	if math.IsNaN(o.offset) || math.IsInf(o.offset, 0) {
		return s, fmt.Errorf("%w: %s: offset %v", ErrInvalidArgument, name, o.offset)
	}
	s = Signal[R]{
		name:   name,
		layout: layout,
		scale:  o.scale,
		offset: o.offset,
		unit:   o.unit,
		spn:    o.spn,
	}
	s.lo, s.hi = bitDomain[R](layout)
	if o.hasLimits && !(o.min == 0 && o.max == 0) {
		lo, hi := s.toRaw(o.min), s.toRaw(o.max)
		if lo > hi {
			lo, hi = hi, lo
		}
		if lo > float64(s.hi) || hi < float64(s.lo) {
			return s, fmt.Errorf("%w: %s: limits [%v|%v] leave no raw value", ErrInvalidArgument, name, o.min, o.max)
		}
		if lo > float64(s.lo) {
			s.lo = R(lo)
		}
		if hi < float64(s.hi) {
			s.hi = R(hi)
		}
		if s.lo > s.hi {
			return s, fmt.Errorf("%w: %s: limits [%v|%v] leave no raw value", ErrInvalidArgument, name, o.min, o.max)
		}
	}
	s.choices, s.labels = sortChoices(o.choices)
	return s, nil
}

// Must is New for generated code; it panics on an invalid definition.
func Must[R Integer](name string, layout bitfield.Layout, opts ...Option) Signal[R] {
	s, err := New[R](name, layout, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// toRaw converts a declared limit to raw units, truncated toward zero.
// Values within 1e-6 of an integer are snapped first so that decimal limits
// such as 229.52 with scale 0.01 land on the integer they denote.
func (s Signal[R]) toRaw(limit float64) float64 {
	v := (limit - s.offset) / s.scale
	if r := math.Round(v); math.Abs(v-r) < 1e-6 {
		return r
	}
	return math.Trunc(v)
}

func (s Signal[R]) Name() string            { return s.name }
func (s Signal[R]) Unit() string            { return s.unit }
func (s Signal[R]) SPN() uint32             { return s.spn }
func (s Signal[R]) Layout() bitfield.Layout { return s.layout }
func (s Signal[R]) Scale() float64          { return s.scale }
func (s Signal[R]) Offset() float64         { return s.offset }
func (s Signal[R]) Choices() []Choice       { return slices.Clone(s.choices) }

// Limits is the inclusive raw domain.
func (s Signal[R]) Limits() (lo, hi R) { return s.lo, s.hi }

// Raw reads the field from f, sign extended for signed layouts.
// The layout must fit f's capacity.
func (s Signal[R]) Raw(f *frame.Frame) R {
	v := bitfield.Extract(f.Buffer(), s.layout)
	if s.layout.Signed {
		return R(bitfield.SignExtend(v, s.layout.Length))
	}
	return R(v)
}

func (s Signal[R]) RawInRange(r R) bool { return s.lo <= r && r <= s.hi }

// Decode is raw*scale + offset.
func (s Signal[R]) Decode(r R) float64 { return float64(r)*s.scale + s.offset }

// Encode is the inverse of Decode, truncated toward zero by Truncate.
func (s Signal[R]) Encode(x float64) R {
	r, _ := Truncate[R]((x - s.offset) / s.scale)
	return r
}

// Real is Decode(Raw(f)).
func (s Signal[R]) Real(f *frame.Frame) float64 { return s.Decode(s.Raw(f)) }

// InRange reports whether x, once encoded and truncated, lies in the raw
// domain. Values that do not fit R at all are out of range.
func (s Signal[R]) InRange(x float64) bool {
	r, ok := Truncate[R]((x - s.offset) / s.scale)
	return ok && s.RawInRange(r)
}

// Set encodes x into f. It returns false and leaves f untouched when x is
// out of range.
func (s Signal[R]) Set(f *frame.Frame, x float64) bool {
	r, ok := Truncate[R]((x - s.offset) / s.scale)
	if !ok {
		return false
	}
	return s.SetRaw(f, r)
}

// SetRaw writes r into f unless it lies outside the raw domain.
func (s Signal[R]) SetRaw(f *frame.Frame, r R) bool {
	if !s.RawInRange(r) {
		return false
	}
	bitfield.Insert(f.Buffer(), s.layout, uint64(r))
	return true
}

// Clear zeroes the field's bits in f.
func (s Signal[R]) Clear(f *frame.Frame) { bitfield.Clear(f.Buffer(), s.layout) }

// Truncate converts x to R by dropping the fraction. ok is false when x is
// NaN or its integer part does not fit R; r is then saturated at the nearest
// bound (0 for NaN).
func Truncate[R Integer](x float64) (r R, ok bool) {
	if math.IsNaN(x) {
		return 0, false
	}
	t := math.Trunc(x)
	w := width[R]()
	if signed[R]() {
		// -2^(w-1) is exact in float64; 2^(w-1) is the first value past max.
		limit := math.Ldexp(1, w-1)
		switch {
		case t < -limit:
			return R(int64(-1) << (w - 1)), false
		case t >= limit:
			return R(int64(uint64(1)<<(w-1) - 1)), false
		}
		return R(int64(t)), true
	}
	limit := math.Ldexp(1, w)
	switch {
	case t < 0:
		return 0, false
	case t >= limit:
		return R(^uint64(0) >> (64 - w)), false
	}
	return R(uint64(t)), true
}

func width[R Integer]() int {
	var zero R
	return int(unsafe.Sizeof(zero)) * 8
}

func signed[R Integer]() bool {
	var zero R
	return ^zero < 0
}

func bitDomain[R Integer](l bitfield.Layout) (lo, hi R) {
	n := uint(l.Length)
	if l.Signed {
		top := int64(uint64(1)<<(n-1) - 1)
		return R(-top - 1), R(top)
	}
	return 0, R(^uint64(0) >> (64 - n))
}

// sortChoices orders the table by value and keeps the first name for a
// duplicated value.
func sortChoices(in []Choice) ([]Choice, []string) {
	if len(in) == 0 {
		return nil, nil
	}
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b Choice) int {
		switch {
		case a.Value < b.Value:
			return -1
		case a.Value > b.Value:
			return 1
		}
		return 0
	})
	out = slices.CompactFunc(out, func(a, b Choice) bool { return a.Value == b.Value })
	labels := make([]string, len(out))
	for i, c := range out {
		labels[i] = EnumLabel(c.Name)
	}
	return out, labels
}
