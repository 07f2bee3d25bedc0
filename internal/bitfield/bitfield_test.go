package bitfield

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"go.einride.tech/can"
)

func TestPrimitives(t *testing.T) {
	tests := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"packLeft", uint64(PackLeftShift(0x5, 3, 0x38)), 0x28},
		{"packLeftMasksHighBits", uint64(PackLeftShift(0x1FF, 1, 0xFE)), 0xFE},
		{"packRight", uint64(PackRightShift(0xABCD, 8, 0xFF)), 0xAB},
		{"packRightWideIntermediate", uint64(PackRightShift(0x0800, 11, 0x01)), 0x01},
		{"unpackLeft", UnpackLeftShift(0x06, 3, 0xFF), 0x30},
		{"unpackLeftWide", UnpackLeftShift(0xFF, 56, 0xFF), 0xFF00000000000000},
		{"unpackRight", UnpackRightShift(0xE0, 5, 0xE0), 0x07},
		{"unpackRightMask", UnpackRightShift(0xC0, 1, 0x7E), 0x20},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Fatalf("%s: got 0x%X want 0x%X", tc.name, tc.got, tc.want)
		}
	}
}

func TestSegments(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		want   []Segment
	}{
		{"beSingleBit", Layout{Start: 7, Length: 1, Order: BigEndian}, []Segment{{0, 7, 0x80}}},
		{"beInsideByte", Layout{Start: 6, Length: 6, Order: BigEndian}, []Segment{{0, 1, 0x7E}}},
		{"beThreeBytes", Layout{Start: 0, Length: 12, Order: BigEndian, Signed: true},
			[]Segment{{0, -11, 0x01}, {1, -3, 0xFF}, {2, 5, 0xE0}}},
		{"leTwoBytes", Layout{Start: 3, Length: 10}, []Segment{{0, 3, 0xF8}, {1, -5, 0x1F}}},
		{"leWholeBuffer", Layout{Start: 0, Length: 64}, []Segment{
			{0, 0, 0xFF}, {1, -8, 0xFF}, {2, -16, 0xFF}, {3, -24, 0xFF},
			{4, -32, 0xFF}, {5, -40, 0xFF}, {6, -48, 0xFF}, {7, -56, 0xFF},
		}},
	}
	for _, tc := range tests {
		got := tc.layout.Segments()
		if len(got) != len(tc.want) {
			t.Fatalf("%s: got %d segments want %d (%+v)", tc.name, len(got), len(tc.want), got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: segment %d got %+v want %+v", tc.name, i, got[i], tc.want[i])
			}
		}
	}
}

func TestExtractMotohawk(t *testing.T) {
	buf := []byte{0xC0, 0x06, 0xE0, 0, 0, 0, 0, 0}
	enable := Layout{Start: 7, Length: 1, Order: BigEndian}
	radius := Layout{Start: 6, Length: 6, Order: BigEndian}
	temp := Layout{Start: 0, Length: 12, Order: BigEndian, Signed: true}
	if v := Extract(buf, enable); v != 1 {
		t.Fatalf("enable got %d", v)
	}
	if v := Extract(buf, radius); v != 32 {
		t.Fatalf("radius got %d", v)
	}
	if v := Extract(buf, temp); v != 55 {
		t.Fatalf("temperature got %d", v)
	}
}

func TestInsertPreservesNeighbours(t *testing.T) {
	layouts := []Layout{
		{Start: 7, Length: 1, Order: BigEndian},
		{Start: 6, Length: 6, Order: BigEndian},
		{Start: 0, Length: 12, Order: BigEndian},
		{Start: 3, Length: 10},
		{Start: 13, Length: 27},
		{Start: 0, Length: 64},
		{Start: 39, Length: 32, Order: BigEndian},
		{Start: 35, Length: 20, Order: BigEndian},
	}
	values := []uint64{0, 1, 0x5A5A5A5A5A5A5A5A, ^uint64(0)}
	for _, l := range layouts {
		for _, v := range values {
			buf := bytes.Repeat([]byte{0xA5}, 8)
			ref := bytes.Repeat([]byte{0xA5}, 8)
			Insert(buf, l, v)
			want := v
			if l.Length < 64 {
				want &= 1<<l.Length - 1
			}
			if got := Extract(buf, l); got != want {
				t.Fatalf("%+v v=0x%X: extract got 0x%X want 0x%X", l, v, got, want)
			}
			Clear(buf, l)
			Clear(ref, l)
			if !bytes.Equal(buf, ref) {
				t.Fatalf("%+v: bits outside the field changed\n got % X\nwant % X", l, buf, ref)
			}
		}
	}
}

func TestExtractMatchesLittleEndianReference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		var d can.Data
		rng.Read(d[:])
		start := rng.Intn(64)
		length := 1 + rng.Intn(64-start)
		l := Layout{Start: uint16(start), Length: uint16(length)}
		want := d.UnsignedBitsLittleEndian(uint8(start), uint8(length))
		if got := Extract(d[:], l); got != want {
			t.Fatalf("start=%d len=%d data=% X: got 0x%X want 0x%X", start, length, d[:], got, want)
		}
	}
}

func TestSize(t *testing.T) {
	tests := []struct {
		layout Layout
		want   int
	}{
		{Layout{Start: 7, Length: 1, Order: BigEndian}, 1},
		{Layout{Start: 0, Length: 12, Order: BigEndian}, 3},
		{Layout{Start: 0, Length: 64}, 8},
		{Layout{Start: 56, Length: 8}, 8},
		{Layout{Start: 24, Length: 160}, 23},
	}
	for _, tc := range tests {
		if got := tc.layout.Size(); got != tc.want {
			t.Fatalf("%+v: size got %d want %d", tc.layout, got, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := (Layout{Start: 0, Length: 64}).Validate(8, true); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
	if err := (Layout{Start: 0, Length: 160}).Validate(20, false); err != nil {
		t.Fatalf("expected text layout ok got %v", err)
	}
	bad := []struct {
		name     string
		layout   Layout
		capacity int
		numeric  bool
	}{
		{"zeroLength", Layout{Start: 0}, 8, true},
		{"tooWide", Layout{Start: 0, Length: 65}, 16, true},
		{"pastCapacity", Layout{Start: 60, Length: 8}, 8, true},
		{"badOrder", Layout{Start: 0, Length: 8, Order: 7}, 8, true},
	}
	for _, tc := range bad {
		err := tc.layout.Validate(tc.capacity, tc.numeric)
		if !errors.Is(err, ErrInvalidLayout) {
			t.Fatalf("%s: expected ErrInvalidLayout got %v", tc.name, err)
		}
	}
}

func TestSignExtend(t *testing.T) {
	tests := []struct {
		v      uint64
		length uint16
		want   int64
	}{
		{0xFFF, 12, -1},
		{0x7FF, 12, 2047},
		{0x800, 12, -2048},
		{0x37, 12, 55},
		{0xFFFFFFFFFFFFFFFB, 64, -5},
		{1, 1, -1},
	}
	for _, tc := range tests {
		if got := SignExtend(tc.v, tc.length); got != tc.want {
			t.Fatalf("SignExtend(0x%X,%d) got %d want %d", tc.v, tc.length, got, tc.want)
		}
	}
}

func TestExtractInsertAllocationFree(t *testing.T) {
	buf := make([]byte, 8)
	l := Layout{Start: 0, Length: 12, Order: BigEndian}
	allocs := testing.AllocsPerRun(100, func() {
		Insert(buf, l, 0x123)
		_ = Extract(buf, l)
		Clear(buf, l)
	})
	if allocs != 0 {
		t.Fatalf("expected no allocations, got %v", allocs)
	}
}

func BenchmarkExtractBigEndian12(b *testing.B) {
	buf := []byte{0xC0, 0x06, 0xE0, 0, 0, 0, 0, 0}
	l := Layout{Start: 0, Length: 12, Order: BigEndian}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Extract(buf, l)
	}
}

func BenchmarkInsertLittleEndian64(b *testing.B) {
	buf := make([]byte, 8)
	l := Layout{Start: 0, Length: 64}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Insert(buf, l, uint64(i))
	}
}
