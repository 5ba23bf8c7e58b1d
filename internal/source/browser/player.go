// Package browser drives a <video> element in a running Chrome through the
// DevTools protocol.
package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/source"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

// Config locates the browser and the video.
type Config struct {
	DebugURL  string // ws:// endpoint of a Chrome started with --remote-debugging-port
	PageURL   string // navigated to when set
	Selector  string // CSS selector of the video element
	MaxWidth  int
	MaxHeight int
	Poll      time.Duration
}

// Player is one video element in one tab.
type Player struct {
	source.Emitter
	cfg Config

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu  sync.RWMutex
	url string

	done chan struct{}
}

// Open attaches to the browser, optionally navigates, and installs the
// lifecycle listeners on the video element.
func Open(ctx context.Context, cfg Config) (*Player, error) {
	if cfg.Selector == "" {
		cfg.Selector = "video"
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	if cfg.MaxWidth <= 0 || cfg.MaxHeight <= 0 {
		cfg.MaxWidth, cfg.MaxHeight = 640, 360
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), cfg.DebugURL)
	tabCtx, cancel := chromedp.NewContext(allocCtx)
	p := &Player{cfg: cfg, ctx: tabCtx, cancel: cancel, allocCancel: allocCancel, done: make(chan struct{})}

	var installed bool
	var actions []chromedp.Action
	if cfg.PageURL != "" {
		actions = append(actions, chromedp.Navigate(cfg.PageURL))
	}
	actions = append(actions,
		chromedp.WaitReady(cfg.Selector, chromedp.ByQuery),
		chromedp.Evaluate(installScript(cfg.Selector), &installed),
	)
	if err := p.run(ctx, actions...); err != nil {
		p.shutdown()
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "attach to browser").WithMetadata("debug_url", cfg.DebugURL)
	}

	var href string
	if err := p.run(ctx, chromedp.Evaluate(`location.href`, &href)); err == nil {
		p.url = href
	}

	go p.poll()
	return p, nil
}

// run executes actions in the tab, bounded by ctx.
func (p *Player) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// snapshotResult is returned by the capture script.
type snapshotResult struct {
	Data  string `json:"data"`
	Error string `json:"error"`
}

// Snapshot draws the current frame onto a canvas and decodes it.
func (p *Player) Snapshot(ctx context.Context) (image.Image, error) {
	var res snapshotResult
	if err := p.run(ctx, chromedp.Evaluate(snapshotScript(p.cfg.Selector, p.cfg.MaxWidth, p.cfg.MaxHeight), &res)); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "evaluate snapshot")
	}
	switch {
	case res.Error == "SecurityError":
		return nil, apperrors.New(apperrors.CaptureDenied, "cross-origin video frame")
	case res.Error != "":
		return nil, apperrors.New(apperrors.CaptureFailed, res.Error)
	}
	return decodeDataURL(res.Data)
}

func decodeDataURL(s string) (image.Image, error) {
	_, payload, ok := strings.Cut(s, ",")
	if !ok {
		return nil, apperrors.New(apperrors.CaptureFailed, "malformed data url")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "decode data url")
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "decode frame")
	}
	return img, nil
}

// CurrentTime reads video.currentTime.
func (p *Player) CurrentTime(ctx context.Context) (float64, error) {
	var t float64
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%q)?.currentTime ?? 0`, p.cfg.Selector), &t)); err != nil {
		return 0, apperrors.Wrap(err, apperrors.Unavailable, "read current time")
	}
	return t, nil
}

// Play resumes the video.
func (p *Player) Play(ctx context.Context) error {
	return p.control(ctx, `v.play().catch(() => {})`)
}

// Pause pauses the video.
func (p *Player) Pause(ctx context.Context) error {
	return p.control(ctx, `v.pause()`)
}

func (p *Player) control(ctx context.Context, stmt string) error {
	js := fmt.Sprintf(`(() => { const v = document.querySelector(%q); if (!v) return false; %s; return true; })()`, p.cfg.Selector, stmt)
	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
		return apperrors.Wrap(err, apperrors.Unavailable, "control video")
	}
	if !ok {
		return apperrors.New(apperrors.NotFound, "video element gone").WithMetadata("selector", p.cfg.Selector)
	}
	return nil
}

// URL returns the page URL the video was found on.
func (p *Player) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

// pageEvent is one queued lifecycle event from the page.
type pageEvent struct {
	Kind string  `json:"kind"`
	Time float64 `json:"time"`
	URL  string  `json:"url"`
}

// poll drains the page-side event queue.
func (p *Player) poll() {
	defer close(p.done)
	defer p.Shutdown()

	ticker := time.NewTicker(p.cfg.Poll)
	defer ticker.Stop()
	log := trace.Logger(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			var evs []pageEvent
			if err := chromedp.Run(p.ctx, chromedp.Evaluate(drainScript, &evs)); err != nil {
				if p.ctx.Err() != nil {
					return
				}
				log.Debug("browser event poll failed", "error", err)
				continue
			}
			for _, ev := range evs {
				p.dispatch(ev)
			}
		}
	}
}

func (p *Player) dispatch(ev pageEvent) {
	kind := source.EventKind(ev.Kind)
	switch kind {
	case source.Play, source.Pause, source.Seeking, source.Ended:
	case source.SourceChanged:
		if ev.URL != "" {
			p.mu.Lock()
			p.url = ev.URL
			p.mu.Unlock()
		}
	default:
		return
	}
	p.Emit(source.Event{Kind: kind, Position: ev.Time, URL: ev.URL})
}

// Close detaches from the tab. The browser itself keeps running.
func (p *Player) Close() error {
	p.shutdown()
	<-p.done
	return nil
}

func (p *Player) shutdown() {
	p.cancel()
	p.allocCancel()
}
