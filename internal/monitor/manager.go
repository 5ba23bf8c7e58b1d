// Package monitor attaches detectors to frame sources and routes control
// actions to them.
package monitor

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/flashguard/backend/platform/internal/detector"
	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/events"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/metrics"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/source"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/stats"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

// Stats is the counter service used by detectors and reset.
type Stats interface {
	detector.StatsUpdater
	Reset(ctx context.Context) (stats.Counters, error)
}

// Registry is the session registry used by detectors and reset.
type Registry interface {
	detector.Registry
	Clear(ctx context.Context) error
}

// Deps are the shared services every detector reports to. Journal and
// Metrics may be nil.
type Deps struct {
	Hub      *events.Hub
	Stats    Stats
	Registry Registry
	Journal  Journal
	Metrics  *metrics.Metrics
}

// Config controls the per-detector loop.
type Config struct {
	Detector    detector.Config
	RefreshRate float64
	MaxWidth    int
	MaxHeight   int
	Enabled     bool
}

// Manager is the identity map from handle to running detector.
type Manager struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	runners map[string]*runner
	enabled bool
}

// New creates a manager. Detectors stop when ctx is cancelled or Close is
// called.
func New(ctx context.Context, cfg Config, deps Deps) *Manager {
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = DefaultRefreshRate
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		cfg:     cfg,
		deps:    deps,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		runners: make(map[string]*runner),
		enabled: cfg.Enabled,
	}
}

func (m *Manager) interval() time.Duration {
	return time.Duration(float64(time.Second) / m.cfg.RefreshRate)
}

// Attach starts a detector on p and returns its handle. The manager owns p
// from here on and closes it on Detach.
func (m *Manager) Attach(p source.Player) string {
	handle := uuid.NewString()

	ctx, cancel := context.WithCancel(m.ctx)

	m.mu.Lock()
	r := newRunner(m, handle, p, m.enabled)
	r.cancel = cancel
	m.runners[handle] = r
	m.mu.Unlock()

	if m.deps.Metrics != nil {
		m.deps.Metrics.ActiveDetectors.Add(1)
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r.run(ctx)
	}()
	return handle
}

// Detach stops the detector and closes its player.
func (m *Manager) Detach(handle string) error {
	m.mu.Lock()
	r, ok := m.runners[handle]
	delete(m.runners, handle)
	m.mu.Unlock()
	if !ok {
		return errDetached(handle)
	}

	r.stop()
	if m.deps.Metrics != nil {
		m.deps.Metrics.ActiveDetectors.Add(-1)
	}
	return nil
}

// Enabled reports whether monitoring is switched on.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Enable turns monitoring on for every detector.
func (m *Manager) Enable(ctx context.Context) error {
	return m.setEnabled(ctx, true)
}

// Disable turns monitoring off and dismisses visible warnings.
func (m *Manager) Disable(ctx context.Context) error {
	return m.setEnabled(ctx, false)
}

func (m *Manager) setEnabled(ctx context.Context, on bool) error {
	ctx, span := trace.StartSpan(ctx, "monitor.set_enabled")
	defer span.End()
	span.SetAttr("enabled", on)

	m.mu.Lock()
	m.enabled = on
	runners := m.snapshotRunnersLocked()
	m.mu.Unlock()

	var errs []string
	for _, r := range runners {
		err := r.do(ctx, func(ctx context.Context, d *detector.Detector) error {
			if on {
				d.Enable()
			} else {
				d.Disable(ctx)
			}
			return nil
		})
		if err != nil && !apperrors.IsCode(err, apperrors.NotFound) {
			errs = append(errs, r.handle+": "+err.Error())
		}
	}
	trace.Logger(ctx).Info("monitoring state changed", "enabled", on, "detectors", len(runners))
	if len(errs) > 0 {
		return apperrors.New(apperrors.Internal, "apply enabled state").WithMetadata("failures", strings.Join(errs, "; "))
	}
	return nil
}

// Continue dismisses the warning on handle and resumes its video.
func (m *Manager) Continue(ctx context.Context, handle string) error {
	ctx, span := trace.StartSpan(ctx, "monitor.continue")
	defer span.End()
	span.SetAttr("handle", handle)

	r, err := m.runner(handle)
	if err != nil {
		return err
	}
	return r.do(ctx, func(ctx context.Context, d *detector.Detector) error {
		return d.Continue(ctx)
	})
}

// ResetStats clears the session registry and zeroes the counters.
func (m *Manager) ResetStats(ctx context.Context) (stats.Counters, error) {
	ctx, span := trace.StartSpan(ctx, "monitor.reset_stats")
	defer span.End()

	if err := m.deps.Registry.Clear(ctx); err != nil {
		return stats.Counters{}, err
	}
	return m.deps.Stats.Reset(ctx)
}

// Get returns one detector's view.
func (m *Manager) Get(handle string) (Info, error) {
	r, err := m.runner(handle)
	if err != nil {
		return Info{}, err
	}
	return r.info.Get(), nil
}

// List returns every attached detector, ordered by handle.
func (m *Manager) List() []Info {
	m.mu.RLock()
	runners := m.snapshotRunnersLocked()
	m.mu.RUnlock()

	out := make([]Info, 0, len(runners))
	for _, r := range runners {
		out = append(out, r.info.Get())
	}
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.Handle, b.Handle) })
	return out
}

// Close stops every detector and waits for them to finish.
func (m *Manager) Close() {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(ShutdownTimeout):
		trace.Logger(context.Background()).Warn("detectors did not stop in time")
	}

	m.mu.Lock()
	n := len(m.runners)
	clear(m.runners)
	m.mu.Unlock()
	if m.deps.Metrics != nil {
		m.deps.Metrics.ActiveDetectors.Add(int64(-n))
	}
}

func (m *Manager) runner(handle string) (*runner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runners[handle]
	if !ok {
		return nil, errDetached(handle)
	}
	return r, nil
}

func (m *Manager) snapshotRunnersLocked() []*runner {
	out := make([]*runner, 0, len(m.runners))
	for _, r := range m.runners {
		out = append(out, r)
	}
	return out
}

func errDetached(handle string) error {
	return apperrors.New(apperrors.NotFound, "no such detector").WithMetadata("handle", handle)
}
