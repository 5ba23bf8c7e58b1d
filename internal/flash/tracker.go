// Package flash tracks luminance and red transitions over a sliding window
// and signals when their frequency reaches the danger threshold.
package flash

import (
	"fmt"
	"math"
)

// Kind distinguishes general luminance flashes from saturated-red flashes.
type Kind int

const (
	General Kind = iota
	Red
)

func (k Kind) String() string {
	if k == Red {
		return "red"
	}
	return "general"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind by name.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "general":
		*k = General
	case "red":
		*k = Red
	default:
		return fmt.Errorf("unknown flash kind %q", b)
	}
	return nil
}

// Config holds detection thresholds.
type Config struct {
	WarmupFrames      int
	MinBrightness     float64
	RelativeThreshold float64
	AbsoluteThreshold float64
	RedThreshold      float64
	WindowMs          int64
	Frequency         int
}

// DefaultConfig returns the general-flash thresholds of WCAG 2.3.1.
func DefaultConfig() Config {
	return Config{
		WarmupFrames:      10,
		MinBrightness:     0.05,
		RelativeThreshold: 0.2,
		AbsoluteThreshold: 0.1,
		RedThreshold:      0.8,
		WindowMs:          1000,
		Frequency:         3,
	}
}

// Observation is one analysed frame.
type Observation struct {
	TimestampMs   int64
	Luminance     float64
	RedSaturation float64
}

// Signal reports which queue crossed the frequency threshold and its length.
type Signal struct {
	Kind  Kind `json:"kind"`
	Count int  `json:"count"`
}

// Step is the outcome of a single observation.
type Step struct {
	WarmingUp bool
	General   bool
	Red       bool
	Triggered bool
	Signal    Signal
}

// Tracker is not safe for concurrent use; a detector owns exactly one.
type Tracker struct {
	cfg        Config
	prev       Observation
	hasPrev    bool
	general    []int64
	red        []int64
	analyzed   int
	cumulative int
	peak       int
}

// NewTracker creates a tracker. Zero-valued fields fall back to defaults.
func NewTracker(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.WindowMs <= 0 {
		cfg.WindowMs = def.WindowMs
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = def.Frequency
	}
	if cfg.RelativeThreshold <= 0 {
		cfg.RelativeThreshold = def.RelativeThreshold
	}
	return &Tracker{cfg: cfg}
}

// Observe feeds one observation and reports flashes and the trigger state.
func (t *Tracker) Observe(o Observation) Step {
	t.analyzed++
	t.evict(o.TimestampMs)

	if t.analyzed <= t.cfg.WarmupFrames || !t.hasPrev {
		t.prev, t.hasPrev = o, true
		return Step{WarmingUp: t.analyzed <= t.cfg.WarmupFrames}
	}

	prev := t.prev
	t.prev = o

	var step Step
	if prev.Luminance < t.cfg.MinBrightness || o.Luminance < t.cfg.MinBrightness {
		return step
	}

	delta := math.Abs(o.Luminance - prev.Luminance)
	if delta/math.Max(prev.Luminance, 0.01) > t.cfg.RelativeThreshold && delta > t.cfg.AbsoluteThreshold {
		t.general = append(t.general, o.TimestampMs)
		t.cumulative++
		t.peak = max(t.peak, len(t.general))
		step.General = true
	}
	if math.Abs(o.RedSaturation-prev.RedSaturation) > t.cfg.RedThreshold {
		t.red = append(t.red, o.TimestampMs)
		step.Red = true
	}

	switch {
	case len(t.general) >= t.cfg.Frequency:
		step.Triggered, step.Signal = true, Signal{Kind: General, Count: len(t.general)}
	case len(t.red) >= t.cfg.Frequency:
		step.Triggered, step.Signal = true, Signal{Kind: Red, Count: len(t.red)}
	}
	return step
}

// evict drops events older than the window. The window is inclusive of its
// lower edge: at now=1200 an event at 200 is kept.
func (t *Tracker) evict(now int64) {
	cutoff := now - t.cfg.WindowMs
	t.general = dropBefore(t.general, cutoff)
	t.red = dropBefore(t.red, cutoff)
}

func dropBefore(q []int64, cutoff int64) []int64 {
	i := 0
	for i < len(q) && q[i] < cutoff {
		i++
	}
	if i == 0 {
		return q
	}
	return append(q[:0], q[i:]...)
}

// ClearWindow empties both queues and forgets the previous observation.
// Counters survive.
func (t *Tracker) ClearWindow() {
	t.general = t.general[:0]
	t.red = t.red[:0]
	t.hasPrev = false
}

// Reset returns the tracker to its initial state.
func (t *Tracker) Reset() {
	t.ClearWindow()
	t.analyzed = 0
	t.cumulative = 0
	t.peak = 0
}

// Counts returns the current queue lengths.
func (t *Tracker) Counts() (general, red int) { return len(t.general), len(t.red) }

// Window returns a copy of the general queue timestamps.
func (t *Tracker) Window() []int64 { return append([]int64(nil), t.general...) }

// Peak is the largest general queue length seen since the last Reset.
func (t *Tracker) Peak() int { return t.peak }

// Cumulative is the number of general flashes since the last Reset.
func (t *Tracker) Cumulative() int { return t.cumulative }

// Analyzed is the number of observations since the last Reset.
func (t *Tracker) Analyzed() int { return t.analyzed }

// Warm reports whether the warm-up period is over.
func (t *Tracker) Warm() bool { return t.analyzed >= t.cfg.WarmupFrames }

// Config returns the effective thresholds.
func (t *Tracker) Config() Config { return t.cfg }
