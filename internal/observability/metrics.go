package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WinnCook/real-time-iss-visualization-sub001/model"
)

// EngineCollector bundles Prometheus metrics for the astronomical state
// engine and implements the engine's observer interface so frame, solver,
// and tracking telemetry can be recorded without the engine knowing about
// Prometheus.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	FramesTotal        prometheus.Counter
	FrameDuration      prometheus.Histogram
	BodyUpdateFailures *prometheus.CounterVec
	KeplerIterations   prometheus.Histogram
	TrackingMode       *prometheus.GaugeVec
	FetchOutcomes      *prometheus.CounterVec
	AdvisoriesTotal    prometheus.Counter
}

// NewEngineCollector registers the engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	frames, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_frames_total",
		Help: "Total number of completed engine frames.",
	}), "engine_frames_total")
	if err != nil {
		return nil, err
	}

	frameDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_frame_duration_seconds",
		Help:    "Wall-clock duration of one engine frame computation.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	}), "engine_frame_duration_seconds")
	if err != nil {
		return nil, err
	}

	bodyFailures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_body_update_failures_total",
		Help: "Per-body update failures contained by frame isolation.",
	}, []string{"body"}), "engine_body_update_failures_total")
	if err != nil {
		return nil, err
	}

	keplerIterations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_kepler_iterations",
		Help:    "Newton-Raphson iterations per Kepler solve.",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8},
	}), "engine_kepler_iterations")
	if err != nil {
		return nil, err
	}

	trackingMode, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tracking_mode",
		Help: "Active tracked-object mode (1 for the current mode, 0 otherwise).",
	}, []string{"mode"}), "tracking_mode")
	if err != nil {
		return nil, err
	}

	fetchOutcomes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_fetch_outcomes_total",
		Help: "Fetch outcomes applied to the tracking state machine, by result.",
	}, []string{"result"}), "tracking_fetch_outcomes_total")
	if err != nil {
		return nil, err
	}

	advisories, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracking_advisories_total",
		Help: "Advisories fanned out to subscribers.",
	}), "tracking_advisories_total")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:           gatherer,
		FramesTotal:        frames,
		FrameDuration:      frameDuration,
		BodyUpdateFailures: bodyFailures,
		KeplerIterations:   keplerIterations,
		TrackingMode:       trackingMode,
		FetchOutcomes:      fetchOutcomes,
		AdvisoriesTotal:    advisories,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// FrameCompleted satisfies the engine observer interface.
func (c *EngineCollector) FrameCompleted(d time.Duration) {
	if c == nil {
		return
	}
	c.FramesTotal.Inc()
	c.FrameDuration.Observe(d.Seconds())
}

// BodyUpdateFailed records one contained per-body failure.
func (c *EngineCollector) BodyUpdateFailed(body string) {
	if c == nil {
		return
	}
	c.BodyUpdateFailures.WithLabelValues(body).Inc()
}

// KeplerSolve records the iteration count of one solve.
func (c *EngineCollector) KeplerSolve(iterations int) {
	if c == nil {
		return
	}
	c.KeplerIterations.Observe(float64(iterations))
}

// TrackingModeChanged flips the mode gauge set to the new mode.
func (c *EngineCollector) TrackingModeChanged(mode model.TrackingMode) {
	if c == nil {
		return
	}
	for _, m := range []model.TrackingMode{model.TrackingLive, model.TrackingCached, model.TrackingSimulated} {
		value := 0.0
		if m == mode {
			value = 1
		}
		c.TrackingMode.WithLabelValues(m.String()).Set(value)
	}
}

// FetchOutcome counts one applied fetch outcome.
func (c *EngineCollector) FetchOutcome(success bool) {
	if c == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	c.FetchOutcomes.WithLabelValues(result).Inc()
}

// AdvisoryEmitted counts one advisory fan-out.
func (c *EngineCollector) AdvisoryEmitted() {
	if c == nil {
		return
	}
	c.AdvisoriesTotal.Inc()
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
