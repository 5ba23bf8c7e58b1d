package source

import "sync"

const eventBuffer = 32

// Emitter is an embeddable event channel with non-blocking send and
// idempotent close.
type Emitter struct {
	once sync.Once
	mu   sync.RWMutex
	ch   chan Event
	shut bool
}

func (e *Emitter) init() {
	e.once.Do(func() { e.ch = make(chan Event, eventBuffer) })
}

// Emit sends ev unless the buffer is full or the emitter is closed.
func (e *Emitter) Emit(ev Event) {
	e.init()
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.shut {
		return
	}
	select {
	case e.ch <- ev:
	default:
	}
}

// Events returns the receive side of the channel.
func (e *Emitter) Events() <-chan Event {
	e.init()
	return e.ch
}

// Shutdown closes the channel once.
func (e *Emitter) Shutdown() {
	e.init()
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.shut {
		e.shut = true
		close(e.ch)
	}
}
