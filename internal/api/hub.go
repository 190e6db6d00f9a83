package api

import (
	"sync"

	"github.com/bryanchriswhite/navbar-watcher/internal/autohide"
)

// Hub keeps the latest status and fans it out to stream subscribers
type Hub struct {
	mu          sync.RWMutex
	current     autohide.Status
	hasCurrent  bool
	subscribers map[chan autohide.Status]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan autohide.Status]struct{})}
}

// Publish stores status and offers it to every subscriber. A subscriber that
// has not read its previous status gets the new one in its place.
func (h *Hub) Publish(status autohide.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = status
	h.hasCurrent = true
	for ch := range h.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- status
	}
}

// Current returns the latest status, false before the first decision
func (h *Hub) Current() (autohide.Status, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.hasCurrent
}

// Subscribe registers a stream receiver
func (h *Hub) Subscribe() chan autohide.Status {
	ch := make(chan autohide.Status, 1)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a receiver
func (h *Hub) Unsubscribe(ch chan autohide.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// Subscribers returns the number of open streams
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
