//go:build !linux

package socketcan

import (
	"context"
	"errors"

	"go.einride.tech/can"
)

// ErrUnsupported is returned by Open on platforms without SocketCAN.
var ErrUnsupported = errors.New("socketcan is only available on linux")

// Device exists so callers compile everywhere; Open always fails.
type Device struct{}

func Open(context.Context, string) (*Device, error) { return nil, ErrUnsupported }

func (*Device) Close() error               { return nil }
func (*Device) ReadFrame(*can.Frame) error { return ErrUnsupported }
func (*Device) WriteFrame(can.Frame) error { return ErrUnsupported }
