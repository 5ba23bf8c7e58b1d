// Package detector sequences one video's flash tracking through warm-up,
// monitoring and warning, and applies the protective pause.
package detector

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/flashguard/backend/platform/internal/analysis"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/flash"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/stats"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

// Sink receives the detector's outward effects for one video.
type Sink interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Flash(ctx context.Context, n FlashNotice)
	Warn(ctx context.Context, w Warning)
	Dismiss(ctx context.Context)
}

// StatsUpdater queues counter updates without waiting for them.
type StatsUpdater interface {
	Notify(ctx context.Context, name string, delta int64)
}

// Registry deduplicates monitored and warned videos.
type Registry interface {
	RegisterIfNew(ctx context.Context, videoID string) (bool, error)
	MarkWarned(ctx context.Context, videoID string) (bool, error)
}

// Config controls sampling cadence and seek policy.
type Config struct {
	Flash     flash.Config
	FrameSkip int
	// SeekRearmSeconds re-arms the warning when a seek lands before this
	// position. Zero disables re-arming.
	SeekRearmSeconds float64
}

// DefaultConfig returns the standard detection settings.
func DefaultConfig() Config {
	return Config{Flash: flash.DefaultConfig(), FrameSkip: 3, SeekRearmSeconds: 10}
}

// Detector is owned by a single goroutine. Only Wait may be called from
// elsewhere.
type Detector struct {
	handle   string
	videoID  string
	cfg      Config
	tracker  *flash.Tracker
	sink     Sink
	stats    StatsUpdater
	registry Registry

	state        State
	enabled      bool
	paused       bool
	warningShown bool
	frames       int
	reported     int // general flashes already added to flashesDetected

	wg sync.WaitGroup
}

// New creates an enabled detector in Idle.
func New(handle, videoID string, cfg Config, sink Sink, st StatsUpdater, reg Registry) *Detector {
	if cfg.FrameSkip < 1 {
		cfg.FrameSkip = 1
	}
	return &Detector{
		handle:   handle,
		videoID:  videoID,
		cfg:      cfg,
		tracker:  flash.NewTracker(cfg.Flash),
		sink:     sink,
		stats:    st,
		registry: reg,
		enabled:  true,
	}
}

// Tick advances the rendered-frame counter and reports whether this frame
// should be analysed.
func (d *Detector) Tick() bool {
	if !d.active() {
		return false
	}
	d.frames++
	return d.frames%d.cfg.FrameSkip == 0
}

func (d *Detector) active() bool {
	return d.enabled && !d.paused && d.state != Stopped && d.state != Warned
}

// Process feeds one analysed frame through the tracker.
func (d *Detector) Process(ctx context.Context, res analysis.Result, tsMs int64, playbackSec float64) {
	if !d.active() {
		return
	}
	if d.state == Idle {
		d.state = WarmingUp
		d.register(ctx)
	}

	step := d.tracker.Observe(flash.Observation{
		TimestampMs:   tsMs,
		Luminance:     res.Luminance,
		RedSaturation: res.RedSaturation,
	})
	if d.state == WarmingUp && d.tracker.Warm() {
		d.state = Monitoring
		trace.Logger(ctx).Debug("warm-up complete", "handle", d.handle, "analyzed", d.tracker.Analyzed())
	}

	notice := FlashNotice{Handle: d.handle, VideoID: d.videoID, TimestampMs: tsMs, Luminance: res.Luminance, RedSaturation: res.RedSaturation}
	if step.General {
		notice.Kind = flash.General
		d.sink.Flash(ctx, notice)
	}
	if step.Red {
		notice.Kind = flash.Red
		d.sink.Flash(ctx, notice)
	}

	if step.Triggered && d.state == Monitoring && !d.warningShown {
		d.warn(ctx, step.Signal, playbackSec)
	}
}

func (d *Detector) warn(ctx context.Context, sig flash.Signal, playbackSec float64) {
	ctx, span := trace.StartSpan(ctx, "detector.warn")
	defer span.End()
	log := trace.Logger(ctx)

	d.state = Warned
	d.warningShown = true
	d.paused = true
	if err := d.sink.Pause(ctx); err != nil {
		log.Warn("pause failed", "handle", d.handle, "error", err)
	}

	w := Warning{
		Handle:               d.handle,
		VideoID:              d.videoID,
		Type:                 sig.Kind,
		FlashCount:           sig.Count,
		PeakFlashesPerWindow: d.tracker.Peak(),
		CumulativeFlashes:    d.tracker.Cumulative(),
		TimestampSeconds:     playbackSec,
	}
	d.sink.Warn(ctx, w)
	log.Info("flash threshold crossed", "handle", d.handle, "video", d.videoID, "type", sig.Kind, "count", sig.Count, "at", playbackSec)

	if delta := d.tracker.Cumulative() - d.reported; delta > 0 {
		d.stats.Notify(ctx, stats.FlashesDetected, int64(delta))
		d.reported = d.tracker.Cumulative()
	}

	d.background(func() {
		isNew, err := d.registry.MarkWarned(ctx, d.videoID)
		if err != nil {
			log.Warn("mark warned failed", "video", d.videoID, "error", err)
			return
		}
		if isNew {
			d.stats.Notify(ctx, stats.WarningsIssued, 1)
		}
	})
}

func (d *Detector) register(ctx context.Context) {
	d.background(func() {
		isNew, err := d.registry.RegisterIfNew(ctx, d.videoID)
		if err != nil {
			trace.Logger(ctx).Warn("register video failed", "video", d.videoID, "error", err)
			return
		}
		if isNew {
			d.stats.Notify(ctx, stats.VideosMonitored, 1)
		}
	})
}

func (d *Detector) background(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// Wait blocks until background registry writes have finished.
func (d *Detector) Wait() { d.wg.Wait() }

// Continue dismisses an active warning and resumes playback.
func (d *Detector) Continue(ctx context.Context) error {
	if d.state != Warned {
		return nil
	}
	d.warningShown = false
	d.paused = false
	d.tracker.ClearWindow()
	d.state = d.afterClear()
	d.sink.Dismiss(ctx)
	return d.sink.Resume(ctx)
}

// OnPlay resumes sampling.
func (d *Detector) OnPlay() { d.paused = false }

// OnPause suspends sampling and keeps all state.
func (d *Detector) OnPause() { d.paused = true }

// OnEnded stops the detector.
func (d *Detector) OnEnded() { d.state = Stopped }

// OnSeek drops the window after a discontinuity. Landing before the re-arm
// threshold also clears the warning and run counters.
func (d *Detector) OnSeek(ctx context.Context, positionSec float64) {
	if d.cfg.SeekRearmSeconds > 0 && positionSec < d.cfg.SeekRearmSeconds {
		wasWarned := d.warningShown
		d.resetRun()
		if d.state != Idle {
			d.state = WarmingUp
		}
		if wasWarned {
			d.sink.Dismiss(ctx)
		}
		trace.Logger(ctx).Debug("seek re-armed detector", "handle", d.handle, "position", positionSec)
		return
	}

	d.tracker.ClearWindow()
	if d.state == Stopped {
		d.state = d.afterClear()
	}
}

// Disable stops monitoring and hides any visible warning.
func (d *Detector) Disable(ctx context.Context) {
	if !d.enabled {
		return
	}
	if d.warningShown {
		d.sink.Dismiss(ctx)
	}
	d.enabled = false
	d.resetRun()
	if d.state != Stopped {
		d.state = Idle
	}
}

// Enable resumes monitoring from a fresh warm-up.
func (d *Detector) Enable() { d.enabled = true }

func (d *Detector) resetRun() {
	d.tracker.Reset()
	d.warningShown = false
	d.reported = 0
	d.frames = 0
}

func (d *Detector) afterClear() State {
	if d.tracker.Warm() {
		return Monitoring
	}
	return WarmingUp
}

// State returns the current lifecycle state.
func (d *Detector) State() State { return d.state }

// Handle returns the detector's identity.
func (d *Detector) Handle() string { return d.handle }

// VideoID returns the logical video being monitored.
func (d *Detector) VideoID() string { return d.videoID }

// Snapshot captures the detector's counters.
func (d *Detector) Snapshot() Snapshot {
	g, r := d.tracker.Counts()
	return Snapshot{
		Handle:       d.handle,
		VideoID:      d.videoID,
		State:        d.state,
		Enabled:      d.enabled,
		Paused:       d.paused,
		WarningShown: d.warningShown,
		Analyzed:     d.tracker.Analyzed(),
		Cumulative:   d.tracker.Cumulative(),
		Peak:         d.tracker.Peak(),
		General:      g,
		Red:          r,
	}
}
