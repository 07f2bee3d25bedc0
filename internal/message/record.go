package message

import (
	"time"

	"github.com/kstaniek/go-canframe/internal/j1939"
)

// Record is the JSON form of a decoded message published by the monitor.
type Record struct {
	Time     time.Time      `json:"time"`
	Name     string         `json:"name"`
	ID       uint32         `json:"id"`
	Extended bool           `json:"extended"`
	PGN      *uint32        `json:"pgn,omitempty"`
	Data     string         `json:"data"`
	Signals  map[string]any `json:"signals"`
	Text     string         `json:"text"`
}

// Record snapshots m; PGN is omitted for standard ids.
func (m *Message) Record(at time.Time) Record {
	r := Record{
		Time:     at,
		Name:     m.Name(),
		ID:       m.f.ID(),
		Extended: m.f.Extended(),
		Data:     m.f.HexString(),
		Signals:  m.Values(),
		Text:     m.String(),
	}
	if pgn := m.f.PGN(); pgn != j1939.InvalidPGN {
		r.PGN = &pgn
	}
	return r
}
