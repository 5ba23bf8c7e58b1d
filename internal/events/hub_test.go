package events

import (
	"testing"
	"time"
)

func TestHubBoundsEntries(t *testing.T) {
	h := NewHub(3, 10)
	for i := 0; i < 5; i++ {
		h.Emit(Event{Type: Flash, Handle: string(rune('a' + i))})
	}

	got := h.Recent(0)
	if len(got) != 3 {
		t.Fatalf("Recent = %d entries, want 3", len(got))
	}
	if got[0].Handle != "c" || got[2].Handle != "e" {
		t.Errorf("order = %s..%s, want c..e", got[0].Handle, got[2].Handle)
	}
	if got[0].At.IsZero() {
		t.Error("Emit should stamp events")
	}
}

func TestHubRecentFilter(t *testing.T) {
	h := NewHub(10, 10)
	h.Emit(Event{Type: Flash, Handle: "1"})
	h.Emit(Event{Type: Warning, Handle: "2"})
	h.Emit(Event{Type: Flash, Handle: "3"})
	h.Emit(Event{Type: Stats})

	flashes := h.Recent(0, Flash)
	if len(flashes) != 2 || flashes[1].Handle != "3" {
		t.Errorf("flashes = %+v", flashes)
	}
	last := h.Recent(1, Flash, Warning)
	if len(last) != 1 || last[0].Handle != "3" {
		t.Errorf("Recent(1) = %+v", last)
	}
}

func TestHubEmitNonBlocking(t *testing.T) {
	h := NewHub(10, 1)
	done := make(chan struct{})
	go func() {
		h.Emit(Event{Type: Flash})
		h.Emit(Event{Type: Flash}) // buffer full, dropped from the channel
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full channel")
	}
	if len(h.Events()) != 1 {
		t.Errorf("channel holds %d, want 1", len(h.Events()))
	}
	if len(h.Recent(0)) != 2 {
		t.Error("dropped broadcasts are still recorded")
	}
}
