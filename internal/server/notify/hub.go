package notify

import (
	"context"
	"sync"
)

// subscriberBuffer is the number of events a subscriber may fall behind by
// before further events are dropped for it.
const subscriberBuffer = 8

var _ Publisher = (*Hub)(nil)

// Hub is an in-process fan-out of events keyed by share code.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers interest in a code. The returned cancel func must be
// called to release the subscription; it closes the channel.
func (h *Hub) Subscribe(code string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	set, ok := h.subs[code]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[code] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			set, ok := h.subs[code]
			if !ok {
				return
			}
			if _, ok := set[ch]; !ok {
				return
			}
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, code)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every current subscriber of its code.
// It never blocks: a subscriber with a full buffer misses the event.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[event.Code] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for a code.
func (h *Hub) Subscribers(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[code])
}

// Close ends every subscription. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for code, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, code)
	}
}
