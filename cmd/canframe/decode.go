package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"go.einride.tech/can"

	"github.com/kstaniek/go-canframe/internal/j1939"
	"github.com/kstaniek/go-canframe/internal/message"
)

// runDecode prints the message for -id/-data. Payloads longer than a
// classic frame are wrapped directly against the definition.
func runDecode(cfg *appConfig, cat *message.Catalog, out io.Writer) error {
	id, err := parseID(cfg.id)
	if err != nil {
		return err
	}
	ext := cfg.extended || id > 0x7FF
	data, err := hex.DecodeString(strings.TrimPrefix(strings.ReplaceAll(cfg.data, " ", ""), "0x"))
	if err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}

	var m *message.Message
	if len(data) <= j1939.SingleFrameCapacity {
		fr := can.Frame{ID: id, Length: uint8(len(data)), IsExtended: ext}
		copy(fr.Data[:], data)
		m, err = cat.Decode(fr)
	} else {
		d, ok := cat.ByID(id, ext)
		if !ok {
			return fmt.Errorf("%w: id 0x%X", message.ErrUnknownMessage, id)
		}
		buf := make([]byte, max(int(d.Frame.Capacity), len(data)))
		copy(buf, data)
		m, err = d.Own(buf, len(data))
	}
	if err != nil {
		return err
	}
	printMessage(out, m)
	return nil
}
