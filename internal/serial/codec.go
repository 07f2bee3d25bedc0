// Package serial speaks the Ampio UART-to-CAN framing over a serial port.
package serial

import (
	"bytes"
	"encoding/binary"

	"go.einride.tech/can"

	"github.com/kstaniek/go-canframe/internal/metrics"
	"github.com/kstaniek/go-canframe/internal/transport"
)

var (
	_ transport.StreamDecoder = Codec{}
	_ transport.FrameEncoder  = Codec{}
)

const (
	preamble0 = 0x2D
	preamble1 = 0xD4

	insSendExt = 2 // INS: CAN send with 29-bit id

	// RX envelope length byte counts ID(4) + PAYLOAD(0..8) + checksum(1).
	minRxLen = 4 + 0 + 1
	maxRxLen = 4 + 8 + 1
)

// Codec converts between the UART envelope and bus frames. The adapter
// reports every id as 29-bit; with StandardIDs set, ids that fit in 11
// bits are delivered as standard frames.
type Codec struct {
	StandardIDs bool
}

// CompactBuffer reclaims consumed prefix capacity when underlying buffer
// grows too large relative to unread bytes. It returns true if compaction
// occurred.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	if len(data) < 1024 {
		return false
	}
	// unread < 25% of capacity
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := bytes.Clone(data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

// appendEnvelope wraps body as 2D D4 LEN BODY CRC, where LEN is
// len(body)+1 and CRC is 0x2D + LEN + sum(body) mod 256.
func appendEnvelope(dst []byte, body []byte) []byte {
	ln := byte(len(body) + 1)
	sum := ln + preamble0
	dst = append(dst, preamble0, preamble1, ln)
	for _, b := range body {
		sum += b
	}
	dst = append(dst, body...)
	return append(dst, sum)
}

// Encode renders fr as an adapter send command.
func (c Codec) Encode(fr can.Frame) []byte {
	return c.AppendEncode(make([]byte, 0, 4+6+int(fr.Length)), fr)
}

// AppendEncode appends the send command for fr to dst:
// INS(1) FLAGS(1) ID(4, big endian) PAYLOAD(0..8) inside the envelope.
func (Codec) AppendEncode(dst []byte, fr can.Frame) []byte {
	n := min(int(fr.Length), 8)
	var body [6 + 8]byte
	body[0] = insSendExt
	body[1] = 0x80 | byte(n)
	binary.BigEndian.PutUint32(body[2:6], fr.ID&0x1FFFFFFF)
	copy(body[6:], fr.Data[:n])
	return appendEnvelope(dst, body[:6+n])
}

// DecodeStream reads from in and emits complete frames via out, leaving any
// partial frame buffered. Bytes that fail the length or checksum test are
// counted as malformed and skipped one at a time until the stream realigns.
//
// Received frame (DLC=8):
//
//	2D D4                    preamble
//	0D                       len = id(4) + payload(8) + checksum(1)
//	00 00 00 02              id, big endian
//	FE 10 19 09 19 04 01 20  payload
//	AA                       checksum = 0x2D + len + sum(id, payload)
func (c Codec) DecodeStream(in *bytes.Buffer, out func(can.Frame)) error {
	header := []byte{preamble0, preamble1}
	for {
		_ = CompactBuffer(in)
		data := in.Bytes()
		if len(data) < 3 {
			return nil
		}
		i := bytes.Index(data, header)
		if i < 0 {
			// keep the last byte, it may be the first preamble byte
			if in.Len() > 1 {
				last := data[len(data)-1]
				in.Reset()
				_ = in.WriteByte(last)
			}
			return nil
		}
		if i > 0 {
			in.Next(i)
			continue
		}
		ln := int(data[2])
		if ln < minRxLen || ln > maxRxLen {
			metrics.IncMalformed()
			in.Next(1)
			continue
		}
		total := 3 + ln
		if len(data) < total {
			return nil
		}
		sum := byte(preamble0) + data[2]
		for _, b := range data[3 : total-1] {
			sum += b
		}
		if sum != data[total-1] {
			metrics.IncMalformed()
			in.Next(1)
			continue
		}
		out(c.frame(binary.BigEndian.Uint32(data[3:7]), data[7:total-1]))
		metrics.IncSerialRx()
		in.Next(total)
	}
}

func (c Codec) frame(id uint32, payload []byte) can.Frame {
	fr := can.Frame{
		ID:         id & 0x1FFFFFFF,
		Length:     uint8(len(payload)),
		IsExtended: true,
	}
	if c.StandardIDs && fr.ID <= 0x7FF {
		fr.IsExtended = false
	}
	copy(fr.Data[:], payload)
	return fr
}
