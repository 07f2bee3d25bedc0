// Package transport holds the bus-facing interfaces shared by the backends
// and the queue that serializes writes to a device.
package transport

import (
	"bytes"

	"go.einride.tech/can"
)

// FrameSink is a generic CAN frame transmission target.
type FrameSink interface {
	SendFrame(can.Frame) error
}

// SinkFunc adapts a function to FrameSink.
type SinkFunc func(can.Frame) error

func (f SinkFunc) SendFrame(fr can.Frame) error { return f(fr) }

// StreamDecoder drains complete frames from an accumulating byte stream and
// leaves any partial frame in the buffer.
type StreamDecoder interface {
	DecodeStream(in *bytes.Buffer, out func(can.Frame)) error
}

// FrameEncoder renders one frame in a wire format, appending to dst.
type FrameEncoder interface {
	AppendEncode(dst []byte, fr can.Frame) []byte
}
