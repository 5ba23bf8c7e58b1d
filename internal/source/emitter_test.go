package source

import "testing"

func TestEmitter(t *testing.T) {
	var e Emitter
	e.Emit(Event{Kind: Play})
	e.Emit(Event{Kind: Seeking, Position: 4})

	if ev := <-e.Events(); ev.Kind != Play {
		t.Errorf("first event = %v", ev)
	}
	if ev := <-e.Events(); ev.Kind != Seeking || ev.Position != 4 {
		t.Errorf("second event = %v", ev)
	}

	for i := 0; i < eventBuffer+5; i++ {
		e.Emit(Event{Kind: Pause}) // overflow is dropped, never blocks
	}

	e.Shutdown()
	e.Shutdown()
	e.Emit(Event{Kind: Ended})

	n := 0
	for range e.Events() {
		n++
	}
	if n != eventBuffer {
		t.Errorf("drained %d events, want %d", n, eventBuffer)
	}
}
