package signal

import (
	"errors"
	"strings"
	"testing"

	"github.com/kstaniek/go-canframe/internal/bitfield"
	"github.com/kstaniek/go-canframe/internal/frame"
)

func textFrame(t *testing.T) (*frame.Frame, []byte) {
	t.Helper()
	buf := make([]byte, 24)
	for i := range buf {
		buf[i] = 0xAA
	}
	f, err := frame.Borrow(frame.Definition{ID: 0x18FF0100, Name: "Ident", Capacity: 24, Extended: true}, buf, 24)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	return f, buf
}

func TestStringSetTruncatesToField(t *testing.T) {
	name := MustString("Name", bitfield.Layout{Start: 16, Length: 160}, WithUnit("string"))
	f, buf := textFrame(t)
	long := strings.Repeat("abcdefghijk", 5) // 55 chars
	if !name.Set(f, long) {
		t.Fatalf("set failed")
	}
	if got := name.Real(f); got != long[:20] {
		t.Fatalf("got %q want %q", got, long[:20])
	}
	if buf[0] != 0xAA || buf[1] != 0xAA || buf[22] != 0xAA || buf[23] != 0xAA {
		t.Fatalf("bytes outside the field changed: % X", buf)
	}
}

func TestStringShortValueIsTerminated(t *testing.T) {
	name := MustString("Name", bitfield.Layout{Start: 16, Length: 160}, WithUnit("str"))
	f, buf := textFrame(t)
	name.Set(f, "abc")
	if got := name.Raw(f); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if buf[5] != 0 || buf[21] != 0 {
		t.Fatalf("field tail not cleared: % X", buf)
	}
	if got := name.Format(f); got != "abc" {
		t.Fatalf("format got %q", got)
	}
}

func TestStringStopsAtErasedByte(t *testing.T) {
	s := MustString("Tag", bitfield.Layout{Start: 0, Length: 32})
	buf := []byte{'h', 'i', 0xFF, 'x', 0, 0, 0, 0}
	f := frame.MustBorrow(frame.Definition{ID: 1, Name: "T", Capacity: 8}, buf, 8)
	if got := s.Raw(f); got != "hi" {
		t.Fatalf("got %q", got)
	}
	s.Clear(f)
	if got := s.Raw(f); got != "" {
		t.Fatalf("after clear got %q", got)
	}
}

func TestStringEncode(t *testing.T) {
	s := MustString("Tag", bitfield.Layout{Start: 0, Length: 64})
	if got := s.Encode("ab"); got != 0x6261 {
		t.Fatalf("encode got 0x%X", got)
	}
	if got := s.Encode("abcdefghij"); got != 0x6867666564636261 {
		t.Fatalf("encode got 0x%X", got)
	}
	if s.Encode("") != 0 {
		t.Fatalf("empty encode not zero")
	}
	if !s.InRange(strings.Repeat("z", 100)) || !s.RawInRange(^uint64(0)) {
		t.Fatalf("text should always be in range")
	}
	if s.Decode("same") != "same" {
		t.Fatalf("decode is not identity")
	}
}

func TestNewStringRejectsUnalignedField(t *testing.T) {
	for _, l := range []bitfield.Layout{{Start: 3, Length: 16}, {Start: 8, Length: 12}, {Start: 0}} {
		if _, err := NewString("Bad", l); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%+v: expected ErrInvalidArgument got %v", l, err)
		}
	}
}
