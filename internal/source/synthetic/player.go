// Package synthetic provides a deterministic player that renders frames
// from a pattern function. It backs tests and the demo source.
package synthetic

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/source"
)

// Frame size of rendered snapshots.
const (
	Width  = 64
	Height = 36
)

// Pattern returns the frame colour at playback position pos.
type Pattern func(pos time.Duration) color.RGBA

// Strobe alternates between two grey levels every period.
func Strobe(period time.Duration, low, high uint8) Pattern {
	return func(pos time.Duration) color.RGBA {
		if period <= 0 || (pos/period)%2 == 0 {
			return color.RGBA{low, low, low, 255}
		}
		return color.RGBA{high, high, high, 255}
	}
}

// Steady renders a constant colour.
func Steady(c color.RGBA) Pattern {
	return func(time.Duration) color.RGBA { return c }
}

// Player plays a pattern in real time.
type Player struct {
	source.Emitter

	mu       sync.Mutex
	url      string
	pattern  Pattern
	duration time.Duration // zero plays forever
	now      func() time.Time
	base     time.Duration // position at the last play/seek
	started  time.Time
	playing  bool
	closed   bool
}

// Option configures a Player.
type Option func(*Player)

// WithDuration ends playback after d.
func WithDuration(d time.Duration) Option { return func(p *Player) { p.duration = d } }

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option { return func(p *Player) { p.now = now } }

// New creates a paused player. url identifies the video.
func New(url string, pattern Pattern, opts ...Option) *Player {
	p := &Player{url: url, pattern: pattern, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Player) positionLocked() time.Duration {
	pos := p.base
	if p.playing {
		pos += p.now().Sub(p.started)
	}
	if p.duration > 0 && pos >= p.duration {
		pos = p.duration
		if p.playing {
			p.playing = false
			p.base = pos
			p.Emit(source.Event{Kind: source.Ended, Position: pos.Seconds()})
		}
	}
	return pos
}

// Snapshot renders the frame at the current position.
func (p *Player) Snapshot(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, apperrors.New(apperrors.CaptureFailed, "player closed")
	}

	c := p.pattern(p.positionLocked())
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img, nil
}

// CurrentTime returns the position in seconds.
func (p *Player) CurrentTime(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked().Seconds(), nil
}

// Play starts or resumes playback.
func (p *Player) Play(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.positionLocked()
	if p.playing || p.closed {
		return nil
	}
	if p.duration > 0 && pos >= p.duration {
		pos = 0 // replay
		p.base = 0
		p.Emit(source.Event{Kind: source.Seeking, Position: 0})
	}
	p.playing = true
	p.started = p.now()
	p.Emit(source.Event{Kind: source.Play, Position: pos.Seconds()})
	return nil
}

// Pause freezes playback.
func (p *Player) Pause(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.positionLocked()
	if !p.playing {
		return nil
	}
	p.playing = false
	p.base = pos
	p.Emit(source.Event{Kind: source.Pause, Position: pos.Seconds()})
	return nil
}

// Seek jumps to pos.
func (p *Player) Seek(pos time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	p.base = pos
	p.started = p.now()
	p.Emit(source.Event{Kind: source.Seeking, Position: pos.Seconds()})
}

// Load switches to a different video at position zero.
func (p *Player) Load(url string, pattern Pattern) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.pattern = pattern
	p.base = 0
	p.started = p.now()
	p.Emit(source.Event{Kind: source.SourceChanged, URL: url})
}

// Playing reports whether the player is advancing.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positionLocked()
	return p.playing
}

// URL returns the current video URL.
func (p *Player) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Close stops the player and closes its event channel.
func (p *Player) Close() error {
	p.mu.Lock()
	p.closed = true
	p.playing = false
	p.mu.Unlock()
	p.Shutdown()
	return nil
}
