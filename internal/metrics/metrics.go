// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame pipeline counters
	FramesCaptured atomic.Uint64
	FramesAnalyzed atomic.Uint64
	FramesStalled  atomic.Uint64
	CaptureErrors  atomic.Uint64

	// Detection counters
	GeneralFlashes atomic.Uint64
	RedFlashes     atomic.Uint64
	Warnings       atomic.Uint64

	// Journal
	JournalRecords atomic.Uint64
	JournalErrors  atomic.Uint64

	// Latency tracking
	AnalysisLatencyUs atomic.Uint64 // Last frame analysis time in microseconds

	// Live state
	ActiveDetectors atomic.Int64
	Observers       atomic.Int64

	registry *prometheus.Registry
}

type gauge struct {
	name string
	help string
	fn   func() float64
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	for _, g := range []gauge{
		{"flashguard_frames_captured_total", "Total frames captured from sources", func() float64 { return float64(m.FramesCaptured.Load()) }},
		{"flashguard_frames_analyzed_total", "Total frames analysed", func() float64 { return float64(m.FramesAnalyzed.Load()) }},
		{"flashguard_frames_stalled_total", "Total frames skipped because playback had not advanced", func() float64 { return float64(m.FramesStalled.Load()) }},
		{"flashguard_capture_errors_total", "Total frame capture failures", func() float64 { return float64(m.CaptureErrors.Load()) }},
		{"flashguard_general_flashes_total", "Total general luminance flashes", func() float64 { return float64(m.GeneralFlashes.Load()) }},
		{"flashguard_red_flashes_total", "Total saturated red flashes", func() float64 { return float64(m.RedFlashes.Load()) }},
		{"flashguard_warnings_total", "Total warnings shown", func() float64 { return float64(m.Warnings.Load()) }},
		{"flashguard_journal_records_total", "Total flash records written to the journal", func() float64 { return float64(m.JournalRecords.Load()) }},
		{"flashguard_journal_errors_total", "Total failed journal flushes", func() float64 { return float64(m.JournalErrors.Load()) }},
		{"flashguard_analysis_latency_us", "Last frame analysis time in microseconds", func() float64 { return float64(m.AnalysisLatencyUs.Load()) }},
		{"flashguard_active_detectors", "Number of attached detectors", func() float64 { return float64(m.ActiveDetectors.Load()) }},
		{"flashguard_observers", "Number of connected WebSocket observers", func() float64 { return float64(m.Observers.Load()) }},
	} {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: g.name, Help: g.help}, g.fn))
	}
}

// WatchDegraded exports fn as the degraded-mode indicator of the synced tier.
func (m *Metrics) WatchDegraded(fn func() bool) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "flashguard_stats_degraded",
			Help: "Synced stats tier bypassed (0=healthy, 1=degraded)",
		},
		func() float64 {
			if fn() {
				return 1
			}
			return 0
		},
	))
}

// UpdateAnalysisLatency records how long the last analysis took.
func (m *Metrics) UpdateAnalysisLatency(d time.Duration) {
	m.AnalysisLatencyUs.Store(uint64(d.Microseconds()))
}

// JournalFlushed records the outcome of a journal flush.
func (m *Metrics) JournalFlushed(n int, err error) {
	if err != nil {
		m.JournalErrors.Add(1)
		return
	}
	m.JournalRecords.Add(uint64(n))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
