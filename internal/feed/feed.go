// Package feed streams decoded bus traffic to websocket clients, one JSON
// record per known frame.
package feed

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kstaniek/go-canframe/internal/hub"
	"github.com/kstaniek/go-canframe/internal/logging"
	"github.com/kstaniek/go-canframe/internal/message"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Handler upgrades each request to a websocket and subscribes it to the hub.
// Clients may narrow the stream with repeated ?message=Name parameters.
type Handler struct {
	hub      *hub.Hub
	cat      *message.Catalog
	buf      int
	upgrader websocket.Upgrader
	now      func() time.Time
}

func New(h *hub.Hub, cat *message.Catalog, buf int) *Handler {
	return &Handler{
		hub: h,
		cat: cat,
		buf: buf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

func (f *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var only map[string]struct{}
	if names := r.URL.Query()["message"]; len(names) > 0 {
		only = make(map[string]struct{}, len(names))
		for _, n := range names {
			only[n] = struct{}{}
		}
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.For("feed").Debug("feed_upgrade_error", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	sub := hub.NewSubscriber("feed "+r.RemoteAddr, f.buf)
	f.hub.Add(sub)
	defer f.hub.Remove(sub)
	logging.For("feed").Info("feed_client_connected", "remote", r.RemoteAddr)
	defer logging.For("feed").Info("feed_client_disconnected", "remote", r.RemoteAddr)

	// The read side only notices the peer going away.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-sub.Closed:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, f.now().Add(writeTimeout)); err != nil {
				return
			}
		case fr := <-sub.Out:
			d, ok := f.cat.ByID(fr.ID, fr.IsExtended)
			if !ok {
				continue
			}
			if _, want := only[d.Name()]; only != nil && !want {
				continue
			}
			m, err := message.FromBus(d, fr)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(f.now().Add(writeTimeout))
			if err := conn.WriteJSON(m.Record(f.now())); err != nil {
				logging.For("feed").Debug("feed_write_error", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}
