package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/WinnCook/real-time-iss-visualization-sub001/model"
)

func newTestCollector(t *testing.T) (*EngineCollector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	return collector, reg
}

func findHistogram(t *testing.T, reg *prometheus.Registry, name string) *dto.Histogram {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if h := m.GetHistogram(); h != nil {
				return h
			}
		}
	}
	t.Fatalf("histogram %s not found", name)
	return nil
}

func histogramSampleCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	return findHistogram(t, reg, name).GetSampleCount()
}

func histogramBucketCount(t *testing.T, reg *prometheus.Registry, name string, upperBound float64) uint64 {
	t.Helper()
	for _, b := range findHistogram(t, reg, name).GetBucket() {
		if b.GetUpperBound() == upperBound {
			return b.GetCumulativeCount()
		}
	}
	t.Fatalf("bucket le=%v of %s not found", upperBound, name)
	return 0
}

func TestFrameCompletedRecordsCountAndDuration(t *testing.T) {
	collector, reg := newTestCollector(t)

	collector.FrameCompleted(2 * time.Millisecond)
	collector.FrameCompleted(3 * time.Millisecond)

	if got := testutil.ToFloat64(collector.FramesTotal); got != 2 {
		t.Fatalf("engine_frames_total = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "engine_frame_duration_seconds"); count != 2 {
		t.Fatalf("engine_frame_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestBodyUpdateFailedLabelsPerBody(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.BodyUpdateFailed("Phobos")
	collector.BodyUpdateFailed("Phobos")
	collector.BodyUpdateFailed("ISS")

	if got := testutil.ToFloat64(collector.BodyUpdateFailures.WithLabelValues("Phobos")); got != 2 {
		t.Fatalf("failures{body=Phobos} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.BodyUpdateFailures.WithLabelValues("ISS")); got != 1 {
		t.Fatalf("failures{body=ISS} = %v, want 1", got)
	}
}

func TestKeplerSolveBucketsIterations(t *testing.T) {
	collector, reg := newTestCollector(t)

	collector.KeplerSolve(2)
	collector.KeplerSolve(3)
	collector.KeplerSolve(8)

	if count := histogramSampleCount(t, reg, "engine_kepler_iterations"); count != 3 {
		t.Fatalf("sample_count = %d, want 3", count)
	}
	if count := histogramBucketCount(t, reg, "engine_kepler_iterations", 3); count != 2 {
		t.Fatalf("bucket le=3 count = %d, want 2", count)
	}
}

func TestTrackingModeGaugeIsExclusive(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.TrackingModeChanged(model.TrackingCached)

	for _, tc := range []struct {
		mode string
		want float64
	}{
		{"live", 0},
		{"cached", 1},
		{"simulated", 0},
	} {
		if got := testutil.ToFloat64(collector.TrackingMode.WithLabelValues(tc.mode)); got != tc.want {
			t.Errorf("tracking_mode{mode=%s} = %v, want %v", tc.mode, got, tc.want)
		}
	}

	collector.TrackingModeChanged(model.TrackingSimulated)
	if got := testutil.ToFloat64(collector.TrackingMode.WithLabelValues("cached")); got != 0 {
		t.Fatalf("stale mode gauge not cleared: %v", got)
	}
}

func TestFetchOutcomeCountsByResult(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.FetchOutcome(true)
	collector.FetchOutcome(false)
	collector.FetchOutcome(false)

	if got := testutil.ToFloat64(collector.FetchOutcomes.WithLabelValues("success")); got != 1 {
		t.Fatalf("outcomes{result=success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.FetchOutcomes.WithLabelValues("failure")); got != 2 {
		t.Fatalf("outcomes{result=failure} = %v, want 2", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var collector *EngineCollector
	collector.FrameCompleted(time.Millisecond)
	collector.BodyUpdateFailed("Moon")
	collector.KeplerSolve(4)
	collector.TrackingModeChanged(model.TrackingLive)
	collector.FetchOutcome(true)
	collector.AdvisoryEmitted()
}

func TestNewEngineCollectorIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("first NewEngineCollector: %v", err)
	}
	second, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("second NewEngineCollector: %v", err)
	}

	// Both handles feed the same registered collectors.
	first.FramesTotal.Inc()
	second.FramesTotal.Inc()
	if got := testutil.ToFloat64(first.FramesTotal); got != 2 {
		t.Fatalf("engine_frames_total = %v, want shared 2", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	collector, _ := newTestCollector(t)
	collector.FrameCompleted(time.Millisecond)
	collector.AdvisoryEmitted()

	srv := httptest.NewServer(collector.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}

	text := string(body)
	for _, want := range []string{"engine_frames_total 1", "tracking_advisories_total 1"} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
