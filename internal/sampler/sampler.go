// Package sampler pulls downscaled frames from a source and analyses them.
package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/corona10/goimagehash"

	"github.com/GriffinCanCode/flashguard/backend/platform/internal/analysis"
	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/metrics"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/source"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

// Sample is one analysed frame.
type Sample struct {
	TimestampMs int64
	Position    float64 // playback seconds
	Result      analysis.Result
}

// Sampler is owned by a single detector goroutine.
type Sampler struct {
	player  source.Player
	maxW    int
	maxH    int
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	lastPos  float64
	lastHash *goimagehash.ImageHash
	logged   bool
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithClock replaces the wall clock used for frame timestamps.
func WithClock(now func() time.Time) Option { return func(s *Sampler) { s.now = now } }

// WithMetrics records pipeline counters.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Sampler) { s.metrics = m } }

// New creates a sampler capped to maxW x maxH.
func New(p source.Player, maxW, maxH int, opts ...Option) *Sampler {
	s := &Sampler{player: p, maxW: maxW, maxH: maxH, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Next captures and analyses one frame. ok is false when the frame was
// skipped: either playback has not advanced and the picture is unchanged,
// or the capture failed. Capture failures are logged once per sampler.
func (s *Sampler) Next(ctx context.Context) (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.player.Snapshot(ctx)
	if err != nil {
		s.captureFailed(ctx, err)
		return Sample{}, false
	}
	pos, err := s.player.CurrentTime(ctx)
	if err != nil {
		s.captureFailed(ctx, err)
		return Sample{}, false
	}
	s.inc(func(m *metrics.Metrics) { m.FramesCaptured.Add(1) })

	start := time.Now()
	frame := analysis.NewFrame(img, s.now().UnixMilli(), s.maxW, s.maxH)
	if frame.Width == 0 || len(frame.Pix) < 4*frame.Width*frame.Height {
		s.captureFailed(ctx, apperrors.New(apperrors.CaptureFailed, "empty frame"))
		return Sample{}, false
	}
	hash, hashErr := goimagehash.PerceptionHash(frame.Image())
	if hashErr == nil && s.stalled(pos, hash) {
		s.inc(func(m *metrics.Metrics) { m.FramesStalled.Add(1) })
		return Sample{}, false
	}
	s.lastPos, s.lastHash = pos, hash

	res := analysis.Analyze(frame)
	s.inc(func(m *metrics.Metrics) {
		m.FramesAnalyzed.Add(1)
		m.UpdateAnalysisLatency(time.Since(start))
	})
	return Sample{TimestampMs: frame.TimestampMs, Position: pos, Result: res}, true
}

func (s *Sampler) stalled(pos float64, hash *goimagehash.ImageHash) bool {
	if s.lastHash == nil || pos != s.lastPos {
		return false
	}
	d, err := s.lastHash.Distance(hash)
	return err == nil && d == 0
}

func (s *Sampler) captureFailed(ctx context.Context, err error) {
	s.inc(func(m *metrics.Metrics) { m.CaptureErrors.Add(1) })
	if s.logged || ctx.Err() != nil {
		return
	}
	s.logged = true
	trace.Logger(ctx).Warn("frame capture failing, skipping frames",
		"url", s.player.URL(), "code", apperrors.CodeOf(err).String(), "error", err)
}

// Reset forgets the previous frame. A capture failure already logged stays
// logged for the life of the sampler.
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPos, s.lastHash = 0, nil
}

func (s *Sampler) inc(fn func(*metrics.Metrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}
