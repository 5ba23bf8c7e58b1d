// Package source defines the frame-source contract: a video that can be
// snapshotted, paused and resumed, and that reports its lifecycle.
package source

import (
	"context"
	"image"
)

// EventKind names a playback lifecycle signal.
type EventKind string

const (
	Play          EventKind = "play"
	Pause         EventKind = "pause"
	Seeking       EventKind = "seeking"
	Ended         EventKind = "ended"
	SourceChanged EventKind = "source-changed"
)

// Event is a lifecycle signal. Position is the playback time in seconds
// when the event fired; URL is set on SourceChanged.
type Event struct {
	Kind     EventKind
	Position float64
	URL      string
}

// Player is one video being watched.
type Player interface {
	// Snapshot returns the frame at the current playback position.
	Snapshot(ctx context.Context) (image.Image, error)
	// CurrentTime returns the playback position in seconds.
	CurrentTime(ctx context.Context) (float64, error)
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	// Events delivers lifecycle signals. It is closed when the player closes.
	Events() <-chan Event
	// URL identifies the page or media the player shows.
	URL() string
	Close() error
}
