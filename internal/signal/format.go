package signal

import (
	"strconv"
	"strings"

	"github.com/kstaniek/go-canframe/internal/frame"
)

// Undefined is printed for an enum value missing from the value table.
const Undefined = "UNDEFINED"

const floatPrecision = 6

// showUnit reports whether unit is printed after the value.
func showUnit(unit string) bool {
	switch unit {
	case "", " ", "-":
		return false
	}
	return !IsText(unit) && !strings.EqualFold(unit, "enum") && !strings.EqualFold(unit, "bool")
}

// IsText reports whether unit marks a text signal.
func IsText(unit string) bool {
	return strings.EqualFold(unit, "string") || strings.EqualFold(unit, "str")
}

// EnumLabel turns a value table name into a CamelCase label:
// "I'm_a C0nst" becomes "IMAC0nst".
func EnumLabel(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	start := true
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !isAlnum(c) {
			start = true
			continue
		}
		switch {
		case start && 'a' <= c && c <= 'z':
			c -= 'a' - 'A'
		case !start && 'A' <= c && c <= 'Z':
			c += 'a' - 'A'
		}
		b.WriteByte(c)
		start = false
	}
	return b.String()
}

func isAlnum(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}

// AppendFloat renders v the way a default C++ stream does: shortest of
// fixed or exponent form with six significant digits.
func AppendFloat(dst []byte, v float64) []byte {
	return strconv.AppendFloat(dst, v, 'g', floatPrecision, 64)
}

// AppendValue renders raw r with the unit rules: bool units print
// true/false, enum units print the value table label, everything else prints
// the physical value followed by the unit.
func (s Signal[R]) AppendValue(dst []byte, r R) []byte {
	switch {
	case strings.EqualFold(s.unit, "enum") && len(s.choices) > 0:
		return append(dst, s.label(int64(r))...)
	case strings.EqualFold(s.unit, "bool"):
		return strconv.AppendBool(dst, s.Decode(r) != 0)
	}
	dst = AppendFloat(dst, s.Decode(r))
	if showUnit(s.unit) {
		dst = append(dst, ' ')
		dst = append(dst, s.unit...)
	}
	return dst
}

func (s Signal[R]) label(v int64) string {
	for i, c := range s.choices {
		if c.Value == v {
			return s.labels[i]
		}
	}
	return Undefined
}

// AppendFormat appends the formatted value of the signal in f.
func (s Signal[R]) AppendFormat(dst []byte, f *frame.Frame) []byte {
	return s.AppendValue(dst, s.Raw(f))
}

// Format returns the formatted value of the signal in f.
func (s Signal[R]) Format(f *frame.Frame) string {
	var b [32]byte
	return string(s.AppendFormat(b[:0], f))
}
