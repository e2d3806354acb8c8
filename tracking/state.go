// Package tracking reconciles the live-fetched position of the tracked
// spacecraft against a deterministic orbital fallback. Fetch failures are
// absorbed into a mode machine and never surface as errors; collaborators
// only ever see a mode plus rate-limited human-readable advisories.
package tracking

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/WinnCook/real-time-iss-visualization-sub001/core"
	"github.com/WinnCook/real-time-iss-visualization-sub001/internal/logging"
	"github.com/WinnCook/real-time-iss-visualization-sub001/model"
)

// Config carries the staleness and failure policy. All windows are wall-clock
// seconds because fetches run on wall time regardless of simulation speed.
type Config struct {
	// StalenessWindow is how long a successful fix counts as live.
	StalenessWindow float64
	// GraceWindow is how long past the staleness window a stale fix may
	// still be served (cached) before falling back to the simulated model.
	GraceWindow float64
	// ErrorCeiling is the consecutive-failure count that forces simulated
	// mode until a fetch succeeds again.
	ErrorCeiling int
	// AdvisoryEvery rate-limits failure advisories: one on the first
	// failure, then one every AdvisoryEvery-th failure.
	AdvisoryEvery int
}

// DefaultConfig matches the thresholds the viewer shipped with.
func DefaultConfig() Config {
	return Config{
		StalenessWindow: 15,
		GraceWindow:     120,
		ErrorCeiling:    5,
		AdvisoryEvery:   10,
	}
}

// Advisory is a human-readable notice about a tracking mode change or a
// persisting failure run.
type Advisory struct {
	Mode    model.TrackingMode
	Message string
}

// FallbackModel supplies a deterministic parent-centred position (km) when
// live data is unavailable.
type FallbackModel interface {
	PositionAt(t time.Time) core.Vec3
}

// State is the tracked object's reconciliation machine. It is confined to
// the frame goroutine: outcomes are queued by the fetch poller and applied at
// the start of a frame, so no locking is needed here.
type State struct {
	cfg      Config
	log      logging.Logger
	fallback FallbackModel
	advisory func(Advisory)

	lastFix           model.PositionFix
	hasFix            bool
	lastFetchWallSecs float64
	consecutiveErrors int
	appliedSeq        uint64
}

// NewState constructs the machine. fallback must not be nil; advisory may be.
func NewState(cfg Config, fallback FallbackModel, log logging.Logger, advisory func(Advisory)) *State {
	if log == nil {
		log = logging.Noop()
	}
	if cfg.ErrorCeiling <= 0 {
		cfg.ErrorCeiling = DefaultConfig().ErrorCeiling
	}
	if cfg.AdvisoryEvery <= 0 {
		cfg.AdvisoryEvery = DefaultConfig().AdvisoryEvery
	}
	return &State{cfg: cfg, log: log, fallback: fallback, advisory: advisory}
}

// ConsecutiveErrors returns the current failure run length.
func (s *State) ConsecutiveErrors() int {
	return s.consecutiveErrors
}

// LastFetchWallSeconds returns the unix time of the last applied success,
// or 0 when none has been applied.
func (s *State) LastFetchWallSeconds() float64 {
	return s.lastFetchWallSecs
}

// Apply folds one fetch outcome into the machine. Outcomes carry a monotonic
// sequence number; anything not newer than the last applied outcome lost the
// race and is discarded (last fetch wins). Apply is idempotent per sequence
// number and never returns an error.
func (s *State) Apply(outcome model.FetchOutcome, nowWall time.Time) {
	if outcome.Seq <= s.appliedSeq {
		return
	}
	s.appliedSeq = outcome.Seq

	before := s.Mode(nowWall)

	if outcome.Err != nil {
		s.consecutiveErrors++
		s.maybeAdviseFailure(nowWall)
	} else {
		s.lastFix = outcome.Fix
		s.hasFix = true
		s.lastFetchWallSecs = outcome.Fix.Timestamp
		if s.lastFetchWallSecs == 0 {
			s.lastFetchWallSecs = float64(nowWall.Unix())
		}
		s.consecutiveErrors = 0
	}

	if after := s.Mode(nowWall); after != before {
		s.advise(Advisory{
			Mode:    after,
			Message: fmt.Sprintf("tracking switched from %s to %s", before, after),
		})
	}
}

// Mode derives the current mode from the failure run and fix age. The
// derivation is pure, so transitions driven purely by elapsed time (a live
// fix going stale) need no explicit event.
func (s *State) Mode(nowWall time.Time) model.TrackingMode {
	if !s.hasFix || s.consecutiveErrors >= s.cfg.ErrorCeiling {
		return model.TrackingSimulated
	}
	age := float64(nowWall.Unix()) - s.lastFetchWallSecs
	switch {
	case age <= s.cfg.StalenessWindow:
		return model.TrackingLive
	case age <= s.cfg.StalenessWindow+s.cfg.GraceWindow:
		return model.TrackingCached
	default:
		return model.TrackingSimulated
	}
}

// LocalPosition returns the tracked object's parent-centred position in km
// for the given simulated instant, together with the mode that produced it.
func (s *State) LocalPosition(simTime time.Time, nowWall time.Time) (core.Vec3, model.TrackingMode) {
	mode := s.Mode(nowWall)
	if mode == model.TrackingSimulated {
		return s.fallback.PositionAt(simTime), mode
	}
	return FixToLocal(s.lastFix, EarthRadiusKm), mode
}

func (s *State) maybeAdviseFailure(nowWall time.Time) {
	n := s.consecutiveErrors
	if n != 1 && n%s.cfg.AdvisoryEvery != 0 {
		return
	}
	s.advise(Advisory{
		Mode:    s.Mode(nowWall),
		Message: fmt.Sprintf("position fetch failing (%d consecutive)", n),
	})
}

func (s *State) advise(a Advisory) {
	s.log.Info(context.Background(), "tracking advisory",
		logging.String("mode", a.Mode.String()),
		logging.String("message", a.Message),
	)
	if s.advisory != nil {
		s.advisory(a)
	}
}

// EarthRadiusKm is the mean Earth radius used to convert geodetic fixes to
// Earth-centred positions.
const EarthRadiusKm = 6371.0

// FixToLocal converts a {lat, lon, alt} fix into a parent-centred Cartesian
// position in km, using a spherical parent of the given radius.
func FixToLocal(fix model.PositionFix, parentRadiusKm float64) core.Vec3 {
	lat := fix.Latitude * math.Pi / 180
	lon := fix.Longitude * math.Pi / 180
	r := parentRadiusKm + fix.AltitudeKm

	sinLon, cosLon := math.Sincos(lon)
	sinLat, cosLat := math.Sincos(lat)
	return core.Vec3{
		X: r * cosLat * cosLon,
		Y: r * cosLat * sinLon,
		Z: r * sinLat,
	}
}
