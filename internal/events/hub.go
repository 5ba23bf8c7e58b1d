// Package events keeps a bounded log of pipeline events and broadcasts them
// to UI observers.
package events

import (
	"sync"
	"time"
)

// Type names an event.
type Type string

const (
	Flash    Type = "flash"
	Warning  Type = "warning"
	Dismiss  Type = "dismiss"
	Stats    Type = "stats"
	Detector Type = "detector"
)

// Event is one broadcast message. Data is the JSON-encodable payload.
type Event struct {
	Type   Type      `json:"type"`
	Handle string    `json:"handle,omitempty"`
	At     time.Time `json:"at"`
	Data   any       `json:"data,omitempty"`
}

// Hub stores recent events and fans them out on a buffered channel.
type Hub struct {
	mu       sync.RWMutex
	entries  []Event
	maxSize  int
	eventsCh chan Event
}

// NewHub creates a hub keeping maxEntries events.
func NewHub(maxEntries, eventBuffer int) *Hub {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if eventBuffer <= 0 {
		eventBuffer = DefaultEventBuffer
	}
	return &Hub{
		entries:  make([]Event, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Event, eventBuffer),
	}
}

// Emit records the event and broadcasts it (non-blocking).
func (h *Hub) Emit(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	h.mu.Lock()
	h.entries = append(h.entries, e)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[len(h.entries)-h.maxSize:]
	}
	h.mu.Unlock()

	select {
	case h.eventsCh <- e:
	default:
	}
}

// Events returns the broadcast channel.
func (h *Hub) Events() <-chan Event {
	return h.eventsCh
}

// Recent returns up to n events, oldest first, optionally filtered by type.
func (h *Hub) Recent(n int, types ...Type) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []Event
	for i := len(h.entries) - 1; i >= 0 && (n <= 0 || len(out) < n); i-- {
		if matches(h.entries[i].Type, types) {
			out = append(out, h.entries[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func matches(t Type, types []Type) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}
