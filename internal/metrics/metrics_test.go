package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestHandlerExportsCounters(t *testing.T) {
	m := New()
	m.FramesAnalyzed.Add(7)
	m.RedFlashes.Add(2)
	m.ActiveDetectors.Store(3)
	m.UpdateAnalysisLatency(1500 * time.Microsecond)

	body := scrape(t, m)
	for _, want := range []string{
		"flashguard_frames_analyzed_total 7",
		"flashguard_red_flashes_total 2",
		"flashguard_active_detectors 3",
		"flashguard_analysis_latency_us 1500",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestWatchDegraded(t *testing.T) {
	m := New()
	degraded := false
	m.WatchDegraded(func() bool { return degraded })

	if !strings.Contains(scrape(t, m), "flashguard_stats_degraded 0") {
		t.Error("healthy tier should export 0")
	}
	degraded = true
	if !strings.Contains(scrape(t, m), "flashguard_stats_degraded 1") {
		t.Error("degraded tier should export 1")
	}
}

func TestJournalFlushed(t *testing.T) {
	m := New()
	m.JournalFlushed(4, nil)
	m.JournalFlushed(2, errors.New("locked"))
	if m.JournalRecords.Load() != 4 || m.JournalErrors.Load() != 1 {
		t.Errorf("records %d errors %d", m.JournalRecords.Load(), m.JournalErrors.Load())
	}
}
