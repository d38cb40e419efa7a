package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Message is one event delivered to subscribers.
type Message struct {
	Source string      `json:"source"`
	Kind   string      `json:"kind"`
	Time   time.Time   `json:"time"`
	Data   interface{} `json:"data,omitempty"`
}

// Subscription receives messages on C until it is closed.
type Subscription struct {
	C <-chan Message

	ch     chan Message
	hub    *Hub
	closed bool
}

// Close unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub fans messages out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the message.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	dropped atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber with the given buffer size.
func (h *Hub) Subscribe(buffer int) *Subscription {
	ch := make(chan Message, buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	delete(h.subs, sub)
	close(sub.ch)
}

// Publish delivers msg to every subscriber that has room for it.
func (h *Hub) Publish(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.ch <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was
// too slow.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
