// Package hub fans received bus frames out to independent consumers (the
// decoder, the MQTT publisher, the console printer) so a slow consumer
// never stalls the receive loop.
package hub

import (
	"sync"

	"go.einride.tech/can"

	"github.com/kstaniek/go-canframe/internal/logging"
	"github.com/kstaniek/go-canframe/internal/metrics"
)

type BackpressurePolicy int

const (
	// PolicyDrop discards the frame for a full subscriber.
	PolicyDrop BackpressurePolicy = iota
	// PolicyKick closes a full subscriber.
	PolicyKick
)

// ParsePolicy maps "drop" and "kick" to a policy.
func ParsePolicy(s string) (BackpressurePolicy, bool) {
	switch s {
	case "drop":
		return PolicyDrop, true
	case "kick":
		return PolicyKick, true
	}
	return PolicyDrop, false
}

func (p BackpressurePolicy) String() string {
	if p == PolicyKick {
		return "kick"
	}
	return "drop"
}

type Subscriber struct {
	Name      string
	Out       chan can.Frame
	Closed    chan struct{}
	closeOnce sync.Once
}

// NewSubscriber returns a subscriber with a queue of buf frames.
func NewSubscriber(name string, buf int) *Subscriber {
	return &Subscriber{Name: name, Out: make(chan can.Frame, buf), Closed: make(chan struct{})}
}

// Close signals the subscriber is closed (idempotent).
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.Closed) })
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	Policy BackpressurePolicy
}

func New() *Hub { return &Hub{subs: make(map[*Subscriber]struct{})} }

// Add registers a subscriber.
func (h *Hub) Add(s *Subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	metrics.SetHubSubscribers(n)
	logging.For("hub").Debug("hub_subscribed", "name", s.Name, "subscribers", n)
}

// Remove unregisters and closes a subscriber; safe to call multiple times.
func (h *Hub) Remove(s *Subscriber) {
	h.mu.Lock()
	_, existed := h.subs[s]
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()
	s.Close()
	metrics.SetHubSubscribers(n)
	if existed {
		logging.For("hub").Debug("hub_unsubscribed", "name", s.Name, "subscribers", n)
	}
}

// Broadcast offers fr to every subscriber without blocking.
func (h *Hub) Broadcast(fr can.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case <-s.Closed:
			continue
		default:
		}
		select {
		case s.Out <- fr:
		default:
			if h.Policy == PolicyKick {
				metrics.IncHubKick()
				logging.For("hub").Warn("hub_subscriber_kicked", "name", s.Name)
				s.Close()
			} else {
				metrics.IncHubDrop()
			}
		}
	}
}

// Snapshot returns a copy of the current subscribers.
func (h *Hub) Snapshot() []*Subscriber {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	return subs
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int { h.mu.RLock(); n := len(h.subs); h.mu.RUnlock(); return n }
