package events

import (
	"encoding/json"
	"sync"
)

const defaultBuffer = 16

// EventHub fans state changes out to websocket listeners.
type EventHub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buffer int
}

// NewEventHub creates a hub whose subscriber channels hold buffer events.
func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &EventHub{
		subs:   make(map[chan Event]struct{}),
		buffer: buffer,
	}
}

func (h *EventHub) Subscribe() chan Event {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Subscribers returns the number of active subscriptions.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish sends the event to every subscriber. Slow subscribers miss it.
func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := Event{Name: name, Data: b}
	h.mu.RLock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	h.mu.RUnlock()
}
