package core

import (
	"context"
	"errors"
	"math"

	"github.com/WinnCook/real-time-iss-visualization-sub001/internal/logging"
	"github.com/WinnCook/real-time-iss-visualization-sub001/model"
)

// ErrInvalidPeriod is returned for element sets with a non-positive orbital
// period. Propagation never silently returns the origin instead.
var ErrInvalidPeriod = errors.New("core: orbital period must be positive")

const (
	keplerMaxIterations = 8
	keplerTolerance     = 1e-12
	twoPi               = 2 * math.Pi
)

// Propagator converts Keplerian element sets and a simulated time into
// Cartesian positions in the parent body's reference frame. It is stateless
// apart from its logger and an optional solver observer; the simulated time
// is always an argument, never read from the wall clock.
type Propagator struct {
	log     logging.Logger
	onSolve func(iterations int)
}

// NewPropagator constructs a propagator. A nil logger is replaced with Noop.
func NewPropagator(log logging.Logger) *Propagator {
	if log == nil {
		log = logging.Noop()
	}
	return &Propagator{log: log}
}

// SetSolveObserver registers a hook called with the iteration count of every
// Kepler solve, used for metrics. Pass nil to disable.
func (p *Propagator) SetSolveObserver(fn func(iterations int)) {
	p.onSolve = fn
}

// normalizeAngle wraps an angle into [0, 2π).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	return a
}

// MeanAnomalyAt returns the mean anomaly at simSeconds, in [0, 2π).
func MeanAnomalyAt(el model.OrbitalElements, simSeconds float64) (float64, error) {
	if el.Period <= 0 {
		return 0, ErrInvalidPeriod
	}
	return normalizeAngle(el.MeanAnomaly0 + twoPi*simSeconds/el.Period), nil
}

// solveKepler solves M = E - e·sinE for the eccentric anomaly by
// Newton-Raphson with a fixed iteration cap. For the eccentricities in the
// catalog (e < 0.25) it converges well inside the cap; pathological inputs
// yield a best-effort result and a warning rather than an unbounded loop.
func (p *Propagator) solveKepler(meanAnomaly, eccentricity float64) float64 {
	if eccentricity == 0 {
		if p.onSolve != nil {
			p.onSolve(0)
		}
		return meanAnomaly
	}

	// Starting guess: near-parabolic orbits do better from π.
	E := meanAnomaly + eccentricity*math.Sin(meanAnomaly)
	if eccentricity > 0.8 {
		E = math.Pi
	}

	iterations := keplerMaxIterations
	for i := 0; i < keplerMaxIterations; i++ {
		f := E - eccentricity*math.Sin(E) - meanAnomaly
		fp := 1 - eccentricity*math.Cos(E)
		delta := f / fp
		E -= delta
		if math.Abs(delta) < keplerTolerance {
			iterations = i + 1
			break
		}
	}
	if p.onSolve != nil {
		p.onSolve(iterations)
	}

	if residual := math.Abs(E - eccentricity*math.Sin(E) - meanAnomaly); residual > 1e-9 {
		p.log.Warn(context.Background(), "kepler solver did not converge",
			logging.Any("eccentricity", eccentricity),
			logging.Any("residual", residual),
		)
	}
	return E
}

// PositionAt returns the physical position at simSeconds in the parent's
// reference frame, in the unit family of the element set (AU or km).
func (p *Propagator) PositionAt(el model.OrbitalElements, simSeconds float64) (Vec3, error) {
	meanAnomaly, err := MeanAnomalyAt(el, simSeconds)
	if err != nil {
		return Vec3{}, err
	}

	E := p.solveKepler(meanAnomaly, el.Eccentricity)
	sinE, cosE := math.Sincos(E)

	// Perifocal position; r = a(1 - e·cosE) falls out of these components.
	a := el.SemiMajorAxis
	e := el.Eccentricity
	perifocal := Vec3{
		X: a * (cosE - e),
		Y: a * math.Sqrt(1-e*e) * sinE,
	}

	return perifocalToReference(perifocal, el.ArgPeriapsis, el.Inclination, el.AscendingNode), nil
}

// RotationAngleAt returns the body's rotation angle at simSeconds, in
// [0, 2π). A zero rotation period on an orbiting body means tidal locking:
// the rotation phase is the orbital phase plus half a turn (one face kept
// toward the parent), with no second Kepler solve. Retrograde rotators carry
// a negative rotation period.
func (p *Propagator) RotationAngleAt(el model.OrbitalElements, simSeconds float64) (float64, error) {
	if el.RotationPeriod == 0 {
		angle, err := MeanAnomalyAt(el, simSeconds)
		if err != nil {
			return 0, err
		}
		return normalizeAngle(angle + math.Pi), nil
	}
	return normalizeAngle(twoPi * simSeconds / el.RotationPeriod), nil
}
