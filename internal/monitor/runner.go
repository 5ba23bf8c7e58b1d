package monitor

import (
	"context"
	"time"

	"github.com/GriffinCanCode/flashguard/backend/platform/internal/detector"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/events"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/sampler"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/session"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/source"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/syncx"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

type command struct {
	fn    func(ctx context.Context, d *detector.Detector) error
	reply chan error
}

// runner owns one player and the detector currently bound to it. All
// detector access happens on the runner goroutine.
type runner struct {
	handle  string
	player  source.Player
	m       *Manager
	sampler *sampler.Sampler
	det     *detector.Detector
	cmds    chan command
	cancel  context.CancelFunc
	done    chan struct{}
	info    *syncx.RWGuard[Info]
}

func newRunner(m *Manager, handle string, p source.Player, enabled bool) *runner {
	r := &runner{
		handle:  handle,
		player:  p,
		m:       m,
		sampler: sampler.New(p, m.cfg.MaxWidth, m.cfg.MaxHeight, sampler.WithMetrics(m.deps.Metrics), sampler.WithClock(m.now)),
		cmds:    make(chan command, CommandBuffer),
		done:    make(chan struct{}),
		info:    syncx.NewGuard(Info{}),
	}
	r.bind(p.URL(), enabled)
	return r
}

// bind replaces the detector for a new logical video.
func (r *runner) bind(url string, enabled bool) {
	s := &sink{handle: r.handle, player: r.player, hub: r.m.deps.Hub, journal: r.m.deps.Journal, metrics: r.m.deps.Metrics}
	r.det = detector.New(r.handle, session.VideoID(url), r.m.cfg.Detector, s, r.m.deps.Stats, r.m.deps.Registry)
	if !enabled {
		r.det.Disable(context.Background())
	}
	r.info.Write(func(i *Info) { i.URL = url })
}

func (r *runner) run(ctx context.Context) {
	defer close(r.done)
	ctx = trace.WithContext(ctx, trace.New())
	log := trace.Logger(ctx).With("handle", r.handle)
	log.Info("detector attached", "url", r.player.URL(), "video", r.det.VideoID())

	ticker := time.NewTicker(r.m.interval())
	defer ticker.Stop()
	evs := r.player.Events()

	defer func() {
		if r.det.Snapshot().WarningShown {
			r.m.deps.Hub.Emit(events.Event{Type: events.Dismiss, Handle: r.handle})
		}
		r.det.Wait()
		if err := r.player.Close(); err != nil {
			log.Debug("player close failed", "error", err)
		}
		log.Info("detector detached")
	}()

	r.publish()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-r.cmds:
			err := c.fn(ctx, r.det)
			r.publish()
			c.reply <- err
			continue
		case ev, ok := <-evs:
			if !ok {
				evs = nil
				r.det.OnEnded()
				break
			}
			r.onEvent(ctx, ev)
		case <-ticker.C:
			if !r.det.Tick() {
				continue
			}
			if s, ok := r.sampler.Next(ctx); ok {
				r.det.Process(ctx, s.Result, s.TimestampMs, s.Position)
			}
		}
		r.publish()
	}
}

func (r *runner) onEvent(ctx context.Context, ev source.Event) {
	switch ev.Kind {
	case source.Play:
		r.det.OnPlay()
	case source.Pause:
		r.det.OnPause()
	case source.Seeking:
		r.sampler.Reset()
		r.det.OnSeek(ctx, ev.Position)
	case source.Ended:
		r.det.OnEnded()
	case source.SourceChanged:
		url := ev.URL
		if url == "" {
			url = r.player.URL()
		}
		prev := r.det
		if prev.Snapshot().WarningShown {
			r.m.deps.Hub.Emit(events.Event{Type: events.Dismiss, Handle: r.handle})
		}
		prev.Wait()
		r.sampler.Reset()
		r.bind(url, r.m.Enabled())
		trace.Logger(ctx).Info("source changed", "handle", r.handle, "video", r.det.VideoID())
	}
}

// publish refreshes the externally visible snapshot and announces state
// transitions.
func (r *runner) publish() {
	snap := r.det.Snapshot()
	var prev detector.Snapshot
	r.info.Write(func(i *Info) {
		prev = i.Snapshot
		i.Snapshot = snap
	})
	if prev.State != snap.State || prev.VideoID != snap.VideoID || prev.Enabled != snap.Enabled {
		r.m.deps.Hub.Emit(events.Event{Type: events.Detector, Handle: r.handle, Data: snap})
	}
}

// Info is what the manager reports about a runner.
type Info struct {
	detector.Snapshot
	URL string `json:"url"`
}

// stop cancels the loop and waits for it to finish.
func (r *runner) stop() {
	r.cancel()
	<-r.done
}

// do runs fn on the runner goroutine and waits for its result.
func (r *runner) do(ctx context.Context, fn func(ctx context.Context, d *detector.Detector) error) error {
	c := command{fn: fn, reply: make(chan error, 1)}
	select {
	case r.cmds <- c:
	case <-r.done:
		return errDetached(r.handle)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-r.done:
		return errDetached(r.handle)
	case <-ctx.Done():
		return ctx.Err()
	}
}
