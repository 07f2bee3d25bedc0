package serial

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"go.einride.tech/can"
)

// rxWire builds an adapter->host frame: ID(4) | PAYLOAD(0..8) in the envelope.
func rxWire(id uint32, payload []byte) []byte {
	body := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(body[:4], id)
	copy(body[4:], payload)
	return appendEnvelope(nil, body)
}

func ext(id uint32, data ...byte) can.Frame {
	fr := can.Frame{ID: id, Length: uint8(len(data)), IsExtended: true}
	copy(fr.Data[:], data)
	return fr
}

func TestEncodeExampleFrame(t *testing.T) {
	got := Codec{}.Encode(ext(0x1F0, 0xC0, 0x06, 0xE0))
	// 2D D4 | len=10 | INS=2 FLAGS=0x83 | 00 00 01 F0 | C0 06 E0 | crc
	wantHex := "2dd40a0283000001f0c006e0"
	if hex.EncodeToString(got[:len(got)-1]) != wantHex {
		t.Fatalf("encode got % X", got)
	}
	var sum byte = 0x2D
	for _, b := range got[2 : len(got)-1] {
		sum += b
	}
	if got[len(got)-1] != sum {
		t.Fatalf("checksum got 0x%02X want 0x%02X", got[len(got)-1], sum)
	}
}

func TestAppendEncodeReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 32)
	fr := ext(0x18FF0100, 1, 2, 3, 4, 5, 6, 7, 8)
	allocs := testing.AllocsPerRun(100, func() {
		buf = Codec{}.AppendEncode(buf[:0], fr)
	})
	if allocs != 0 {
		t.Fatalf("AppendEncode allocated %.1f times", allocs)
	}
	if len(buf) != 3+6+8+1 {
		t.Fatalf("wire length %d", len(buf))
	}
}

func TestRoundTripChunked(t *testing.T) {
	codec := Codec{}
	want := []can.Frame{
		ext(0x0001E5A, 0x34, 0x7B, 0x70, 0xD7, 0x94, 0x10, 0x0D, 0xF7),
		ext(0x0001F55, 0xA1, 0xB2, 0xC3, 0xD4, 0xE5, 0xF6),
		ext(0x0123456, 0x9A),
		ext(0x01ABCDE),
	}
	var stream []byte
	for _, fr := range want {
		stream = append(stream, rxWire(fr.ID, fr.Data[:fr.Length])...)
	}

	var buf bytes.Buffer
	var got []can.Frame
	// irregular chunks stress preamble alignment and partial frames
	chunkSizes := []int{1, 2, 3, 4, 5, 7, 11}
	for pos, cs := 0, 0; pos < len(stream); cs++ {
		n := min(chunkSizes[cs%len(chunkSizes)], len(stream)-pos)
		buf.Write(stream[pos : pos+n])
		pos += n
		if err := codec.DecodeStream(&buf, func(fr can.Frame) { got = append(got, fr) }); err != nil {
			t.Fatalf("DecodeStream error: %v", err)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d mismatch\n got  %v\n want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeSkipsGarbage(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x11, 0x2D, 0x00})
	buf.Write(rxWire(0x1F0, []byte{0xC0, 0x06, 0xE0}))
	var got []can.Frame
	if err := (Codec{}).DecodeStream(&buf, func(fr can.Frame) { got = append(got, fr) }); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != 0x1F0 || got[0].Length != 3 {
		t.Fatalf("got %v", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("%d bytes left over", buf.Len())
	}
}

func TestDecodeStandardIDs(t *testing.T) {
	cases := []struct {
		id       uint32
		extended bool
	}{
		{0x1F0, false},
		{0x7FF, false},
		{0x800, true},
		{0x18FF0100, true},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		buf.Write(rxWire(tc.id, []byte{1}))
		var got can.Frame
		_ = Codec{StandardIDs: true}.DecodeStream(&buf, func(fr can.Frame) { got = fr })
		if got.ID != tc.id || got.IsExtended != tc.extended {
			t.Fatalf("id 0x%X: got %v", tc.id, got)
		}
		if err := got.Validate(); err != nil {
			t.Fatalf("id 0x%X: invalid frame %v", tc.id, err)
		}
	}
}

func TestCompactBuffer(t *testing.T) {
	var b bytes.Buffer
	b.Write(make([]byte, 8192))
	b.Next(8192 - 1500)
	if !CompactBuffer(&b) {
		t.Fatalf("expected compaction")
	}
	if b.Len() != 1500 {
		t.Fatalf("compaction lost data: %d", b.Len())
	}
	var small bytes.Buffer
	small.Write(make([]byte, 10))
	if CompactBuffer(&small) {
		t.Fatalf("small buffer compacted")
	}
}

func FuzzDecodeStream(f *testing.F) {
	f.Add(rxWire(0x1F0, []byte{0xC0, 0x06, 0xE0}))
	f.Add([]byte{0x2D, 0xD4, 0xFF})
	f.Add([]byte{0x2D, 0x2D, 0xD4, 0x05, 0, 0, 0, 1})
	f.Fuzz(func(t *testing.T, data []byte) {
		var buf bytes.Buffer
		buf.Write(data)
		_ = Codec{StandardIDs: true}.DecodeStream(&buf, func(fr can.Frame) {
			if fr.Length > 8 {
				t.Fatalf("length %d", fr.Length)
			}
			if err := fr.Validate(); err != nil {
				t.Fatalf("invalid frame %v: %v", fr, err)
			}
		})
	})
}

func BenchmarkDecodeStream(b *testing.B) {
	wire := rxWire(0x18FF0100, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	var buf bytes.Buffer
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf.Write(wire)
		_ = Codec{}.DecodeStream(&buf, func(can.Frame) {})
	}
}
