package screen

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/GriffinCanCode/flashguard/backend/platform/internal/source"
)

// URL identifies the desktop as a video.
const URL = "screen://primary"

// Player exposes the desktop as an endless video. The desktop cannot be
// paused, so Pause only stops the playback clock; the warning itself is the
// protective action.
type Player struct {
	source.Emitter
	capturer *Capturer

	mu      sync.Mutex
	base    time.Duration
	started time.Time
	playing bool
}

// NewPlayer starts a playing desktop source.
func NewPlayer(c *Capturer) *Player {
	p := &Player{capturer: c, started: time.Now(), playing: true}
	p.Emit(source.Event{Kind: source.Play})
	return p
}

// Snapshot captures the display.
func (p *Player) Snapshot(ctx context.Context) (image.Image, error) {
	return p.capturer.Capture(ctx)
}

func (p *Player) position() time.Duration {
	if !p.playing {
		return p.base
	}
	return p.base + time.Since(p.started)
}

// CurrentTime is the time spent playing since the source opened.
func (p *Player) CurrentTime(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position().Seconds(), nil
}

// Play restarts the clock.
func (p *Player) Play(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return nil
	}
	p.playing, p.started = true, time.Now()
	p.Emit(source.Event{Kind: source.Play, Position: p.base.Seconds()})
	return nil
}

// Pause stops the clock.
func (p *Player) Pause(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return nil
	}
	p.base, p.playing = p.position(), false
	p.Emit(source.Event{Kind: source.Pause, Position: p.base.Seconds()})
	return nil
}

// URL returns the desktop identifier.
func (p *Player) URL() string { return URL }

// Close releases the capturer.
func (p *Player) Close() error {
	p.capturer.Close()
	p.Shutdown()
	return nil
}
