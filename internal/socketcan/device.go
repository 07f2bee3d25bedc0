//go:build linux

package socketcan

import (
	"context"
	"fmt"
	"io"
	"net"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// Device is a raw CAN socket bound to one interface.
type Device struct {
	conn net.Conn
	rx   *socketcan.Receiver
	tx   *socketcan.Transmitter
}

// Open binds a raw CAN socket to iface (e.g. "can0", "vcan0").
func Open(ctx context.Context, iface string) (*Device, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("dial can@%s: %w", iface, err)
	}
	return &Device{
		conn: conn,
		rx:   socketcan.NewReceiver(conn),
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (d *Device) Close() error { return d.conn.Close() }

// ReadFrame blocks for the next data frame. Error frames reported by the
// controller are returned as errors.
func (d *Device) ReadFrame(fr *can.Frame) error {
	if !d.rx.Receive() {
		if err := d.rx.Err(); err != nil {
			return err
		}
		return io.EOF
	}
	if d.rx.HasErrorFrame() {
		return fmt.Errorf("error frame: %v", d.rx.ErrorFrame())
	}
	*fr = d.rx.Frame()
	return nil
}

// WriteFrame writes one classic CAN frame.
func (d *Device) WriteFrame(fr can.Frame) error {
	return d.tx.TransmitFrame(context.Background(), fr)
}
