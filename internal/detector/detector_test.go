package detector

import (
	"context"
	"sync"
	"testing"

	"github.com/GriffinCanCode/flashguard/backend/platform/internal/analysis"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/flash"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/stats"
)

type mockSink struct {
	mu        sync.Mutex
	pauses    int
	resumes   int
	dismisses int
	flashes   []FlashNotice
	warnings  []Warning
}

func (m *mockSink) Pause(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
	return nil
}

func (m *mockSink) Resume(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
	return nil
}

func (m *mockSink) Flash(_ context.Context, n FlashNotice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flashes = append(m.flashes, n)
}

func (m *mockSink) Warn(_ context.Context, w Warning) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, w)
}

func (m *mockSink) Dismiss(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dismisses++
}

func (m *mockSink) warnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.warnings)
}

type mockStats struct {
	mu     sync.Mutex
	totals map[string]int64
}

func (m *mockStats) Notify(_ context.Context, name string, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.totals == nil {
		m.totals = make(map[string]int64)
	}
	m.totals[name] += delta
}

func (m *mockStats) get(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[name]
}

type mockRegistry struct {
	mu        sync.Mutex
	monitored map[string]bool
	warned    map[string]bool
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{monitored: map[string]bool{}, warned: map[string]bool{}}
}

func (m *mockRegistry) RegisterIfNew(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.monitored[id] {
		return false, nil
	}
	m.monitored[id] = true
	return true, nil
}

func (m *mockRegistry) MarkWarned(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warned[id] {
		return false, nil
	}
	m.warned[id] = true
	return true, nil
}

type harness struct {
	d     *Detector
	sink  *mockSink
	stats *mockStats
	ts    int64
	lum   float64
}

func newHarness(cfg Config) *harness {
	h := &harness{sink: &mockSink{}, stats: &mockStats{}, lum: 0.1}
	h.d = New("h1", "vid", cfg, h.sink, h.stats, newMockRegistry())
	return h
}

// frames feeds n frames 333ms apart, toggling between 0.1 and 0.9: three
// transitions per second.
func (h *harness) frames(n int) {
	for i := 0; i < n; i++ {
		h.d.Process(context.Background(), analysis.Result{Luminance: h.lum}, h.ts, float64(h.ts)/1000)
		h.ts += 333
		if h.lum == 0.1 {
			h.lum = 0.9
		} else {
			h.lum = 0.1
		}
	}
}

func TestThresholdCorrectness(t *testing.T) {
	h := newHarness(DefaultConfig())

	h.frames(10)
	if h.d.State() != Monitoring {
		t.Fatalf("state after warm-up = %s, want monitoring", h.d.State())
	}
	h.frames(2)
	if h.sink.warnCount() != 0 {
		t.Fatal("two transitions must not warn")
	}
	h.frames(1)
	if h.d.State() != Warned || h.sink.warnCount() != 1 {
		t.Fatalf("state = %s warnings = %d, want warned/1", h.d.State(), h.sink.warnCount())
	}

	w := h.sink.warnings[0]
	if w.Type != flash.General || w.FlashCount != 3 || w.CumulativeFlashes != 3 || w.PeakFlashesPerWindow != 3 {
		t.Errorf("warning = %+v", w)
	}
	if h.sink.pauses != 1 {
		t.Errorf("pauses = %d, want 1", h.sink.pauses)
	}

	// Further flashes while warned are ignored.
	h.frames(6)
	if h.sink.warnCount() != 1 {
		t.Errorf("warnings = %d, want 1 while warned", h.sink.warnCount())
	}

	if err := h.d.Continue(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.d.State() != Monitoring || h.sink.resumes != 1 || h.sink.dismisses != 1 {
		t.Fatalf("after continue state = %s resumes %d", h.d.State(), h.sink.resumes)
	}
	h.frames(4) // seed + three transitions
	if h.sink.warnCount() != 2 {
		t.Errorf("warnings = %d, want 2 after continue", h.sink.warnCount())
	}

	h.d.Wait()
	if got := h.stats.get(stats.WarningsIssued); got != 1 {
		t.Errorf("warningsIssued = %d, want 1 (same video)", got)
	}
	if got := h.stats.get(stats.FlashesDetected); got != 6 {
		t.Errorf("flashesDetected = %d, want 6", got)
	}
	if got := h.stats.get(stats.VideosMonitored); got != 1 {
		t.Errorf("videosMonitored = %d, want 1", got)
	}
}

func TestSeekRearm(t *testing.T) {
	tests := []struct {
		name      string
		position  float64
		wantWarns int
	}{
		{"near start re-arms", 5, 2},
		{"far seek keeps warning", 500, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(DefaultConfig())
			h.frames(13)
			if h.d.State() != Warned {
				t.Fatalf("state = %s, want warned", h.d.State())
			}

			h.d.OnSeek(context.Background(), tt.position)
			h.d.OnPlay()
			h.frames(14)

			if h.sink.warnCount() != tt.wantWarns {
				t.Errorf("warnings = %d, want %d", h.sink.warnCount(), tt.wantWarns)
			}
		})
	}
}

func TestSeekRearmDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SeekRearmSeconds = 0
	h := newHarness(cfg)
	h.frames(13)

	h.d.OnSeek(context.Background(), 0)
	if !h.d.Snapshot().WarningShown {
		t.Error("re-arming disabled: warning should stay shown")
	}
}

func TestSeekClearsWindow(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.frames(12) // two flashes in window
	h.d.OnSeek(context.Background(), 120)

	snap := h.d.Snapshot()
	if snap.General != 0 || snap.State != Monitoring || snap.Analyzed != 12 {
		t.Errorf("after far seek = %+v", snap)
	}

	h.d.OnSeek(context.Background(), 1)
	snap = h.d.Snapshot()
	if snap.State != WarmingUp || snap.Analyzed != 0 || snap.Cumulative != 0 {
		t.Errorf("after near seek = %+v", snap)
	}
}

func TestPauseFreezesState(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.frames(11)
	before := h.d.Snapshot()

	h.d.OnPause()
	if h.d.Tick() {
		t.Error("paused detector should not sample")
	}
	h.frames(5)
	if after := h.d.Snapshot(); after.Analyzed != before.Analyzed || after.State != before.State {
		t.Errorf("paused detector advanced: %+v -> %+v", before, after)
	}

	h.d.OnPlay()
	h.frames(1)
	if h.d.Snapshot().Analyzed != before.Analyzed+1 {
		t.Error("play should resume analysis")
	}
}

func TestTickFrameSkip(t *testing.T) {
	h := newHarness(DefaultConfig())
	var sampled []int
	for i := 1; i <= 9; i++ {
		if h.d.Tick() {
			sampled = append(sampled, i)
		}
	}
	if len(sampled) != 3 || sampled[0] != 3 || sampled[2] != 9 {
		t.Errorf("sampled frames = %v, want [3 6 9]", sampled)
	}
}

func TestEndedStops(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.frames(3)
	h.d.OnEnded()
	if h.d.State() != Stopped || h.d.Tick() {
		t.Errorf("state = %s, want stopped and idle ticks", h.d.State())
	}

	// Replaying from the start re-arms.
	h.d.OnSeek(context.Background(), 0)
	if h.d.State() != WarmingUp {
		t.Errorf("state after replay seek = %s", h.d.State())
	}
}

func TestDisableEnable(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.frames(13)

	h.d.Disable(context.Background())
	snap := h.d.Snapshot()
	if snap.Enabled || snap.State != Idle || snap.WarningShown {
		t.Errorf("after disable = %+v", snap)
	}
	if h.sink.dismisses != 1 {
		t.Errorf("disable should hide the warning, dismisses = %d", h.sink.dismisses)
	}
	h.frames(3)
	if h.d.Snapshot().Analyzed != 0 {
		t.Error("disabled detector must not analyse")
	}

	h.d.Enable()
	h.d.OnPlay()
	h.frames(1)
	if h.d.State() != WarmingUp {
		t.Errorf("state after enable = %s, want warming_up", h.d.State())
	}
}

func TestFlashNotices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Flash.WarmupFrames = 0
	h := newHarness(cfg)
	h.d.Process(context.Background(), analysis.Result{Luminance: 0.5, RedSaturation: 0}, 0, 0)
	h.d.Process(context.Background(), analysis.Result{Luminance: 0.9, RedSaturation: 0.9}, 100, 0.1)

	if len(h.sink.flashes) != 2 {
		t.Fatalf("flashes = %+v, want general and red", h.sink.flashes)
	}
	if h.sink.flashes[0].Kind != flash.General || h.sink.flashes[1].Kind != flash.Red {
		t.Errorf("kinds = %s, %s", h.sink.flashes[0].Kind, h.sink.flashes[1].Kind)
	}
	if h.sink.flashes[1].VideoID != "vid" || h.sink.flashes[1].TimestampMs != 100 {
		t.Errorf("notice = %+v", h.sink.flashes[1])
	}
}
