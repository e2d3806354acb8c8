package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/WinnCook/real-time-iss-visualization-sub001/model"
)

// KmPerAU is the astronomical unit in kilometres (IAU 2012).
const KmPerAU = 1.495978707e8

// ScaleRegime selects which set of display multipliers is active.
type ScaleRegime int

const (
	// RegimeReal preserves true physical ratios: one canonical factor covers
	// both unit families and all radii.
	RegimeReal ScaleRegime = iota
	// RegimeEnlarged trades ratio fidelity for visibility with independent
	// multipliers per concern.
	RegimeEnlarged
)

// ErrUnknownRegime is returned for regime names outside the closed set.
var ErrUnknownRegime = errors.New("core: unknown scale regime")

// ErrInvalidScaleFactors is returned when a regime's factor set is unusable.
var ErrInvalidScaleFactors = errors.New("core: scale factors must be positive")

// String returns the config/wire name of the regime.
func (r ScaleRegime) String() string {
	switch r {
	case RegimeReal:
		return "real"
	case RegimeEnlarged:
		return "enlarged"
	default:
		return "unknown"
	}
}

// ParseScaleRegime maps a config/wire name onto a regime.
func ParseScaleRegime(s string) (ScaleRegime, error) {
	switch strings.ToLower(s) {
	case "real":
		return RegimeReal, nil
	case "enlarged":
		return RegimeEnlarged, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRegime, s)
	}
}

// RegimeFactors is the multiplier set for one regime. DistancePerAU and
// DistancePerKm are the canonical unit-family factors; every other multiplier
// composes on top of them, never replaces them. Mixing two independent
// distance systems is what historically produced moons orbiting at the Sun's
// displayed distance.
type RegimeFactors struct {
	DistancePerAU float64 // display units per AU (heliocentric orbits)
	DistancePerKm float64 // display units per km (planetocentric orbits)
	RadiusPerKm   float64 // display units per km of body radius

	// MoonOrbitBoost multiplies a moon's or spacecraft's scaled orbital
	// distance for visibility. 1 in the real regime.
	MoonOrbitBoost float64
	// RadiusBoost optionally enlarges radii per body class; absent classes
	// use 1.
	RadiusBoost map[model.BodyClass]float64
	// MoonOrbitMargin is the display-unit gap every orbit must keep outside
	// its parent's display radius.
	MoonOrbitMargin float64
}

// RealFactors derives a ratio-preserving factor set from a single canonical
// AU factor: the km factor and radius factor are the same factor expressed
// per kilometre, so every displayed ratio equals the physical one.
func RealFactors(distancePerAU, moonOrbitMargin float64) RegimeFactors {
	perKm := distancePerAU / KmPerAU
	return RegimeFactors{
		DistancePerAU:   distancePerAU,
		DistancePerKm:   perKm,
		RadiusPerKm:     perKm,
		MoonOrbitBoost:  1,
		MoonOrbitMargin: moonOrbitMargin,
	}
}

func (f RegimeFactors) validate() error {
	if f.DistancePerAU <= 0 || f.DistancePerKm <= 0 || f.RadiusPerKm <= 0 || f.MoonOrbitBoost <= 0 {
		return ErrInvalidScaleFactors
	}
	if f.MoonOrbitMargin < 0 {
		return ErrInvalidScaleFactors
	}
	for class, boost := range f.RadiusBoost {
		if boost <= 0 {
			return fmt.Errorf("%w: radius boost for %s", ErrInvalidScaleFactors, class)
		}
	}
	return nil
}

// Converter maps physical distances and radii into display units under the
// active regime's factor set.
type Converter struct {
	factors map[ScaleRegime]RegimeFactors
}

// NewConverter validates and adopts the factor sets for both regimes.
func NewConverter(factors map[ScaleRegime]RegimeFactors) (*Converter, error) {
	for _, regime := range []ScaleRegime{RegimeReal, RegimeEnlarged} {
		f, ok := factors[regime]
		if !ok {
			return nil, fmt.Errorf("%w: missing factors for regime %s", ErrInvalidScaleFactors, regime)
		}
		if err := f.validate(); err != nil {
			return nil, fmt.Errorf("regime %s: %w", regime, err)
		}
	}
	return &Converter{factors: factors}, nil
}

// Factors returns the factor set of a regime.
func (c *Converter) Factors(regime ScaleRegime) RegimeFactors {
	return c.factors[regime]
}

// ToDisplayDistance converts a physical distance into display units using
// the regime's canonical factor for the unit family.
func (c *Converter) ToDisplayDistance(value float64, unit model.DistanceUnit, regime ScaleRegime) float64 {
	f := c.factors[regime]
	if unit == model.UnitAU {
		return value * f.DistancePerAU
	}
	return value * f.DistancePerKm
}

// ToDisplayPosition converts a physical position vector per the unit family.
func (c *Converter) ToDisplayPosition(v Vec3, unit model.DistanceUnit, regime ScaleRegime) Vec3 {
	f := c.factors[regime]
	if unit == model.UnitAU {
		return v.Scale(f.DistancePerAU)
	}
	return v.Scale(f.DistancePerKm)
}

// ToDisplayRadius converts a body radius into display units, applying any
// per-class visibility boost on top of the canonical radius factor.
func (c *Converter) ToDisplayRadius(radiusKm float64, class model.BodyClass, regime ScaleRegime) float64 {
	f := c.factors[regime]
	boost := 1.0
	if b, ok := f.RadiusBoost[class]; ok {
		boost = b
	}
	return radiusKm * f.RadiusPerKm * boost
}

// OrbitDisplayPosition scales a planetocentric position (moon or spacecraft,
// km) into display units, composing the orbit boost on the canonical km
// factor and then clamping radially so the orbit stays strictly outside the
// parent's display radius plus margin. The clamp holds the invariant in both
// regimes; the catalog loader warns when a configuration relies on it.
func (c *Converter) OrbitDisplayPosition(local Vec3, parentDisplayRadius float64, regime ScaleRegime) Vec3 {
	f := c.factors[regime]
	scaled := local.Scale(f.DistancePerKm * f.MoonOrbitBoost)

	floor := parentDisplayRadius + f.MoonOrbitMargin
	if r := scaled.Norm(); r > 0 && r < floor {
		scaled = scaled.Scale(floor / r)
	}
	return scaled
}

// OrbitClampEngaged reports whether a circular orbit of the given physical
// radius (km) around a parent of the given physical radius (km) would rely on
// the clamp in OrbitDisplayPosition under the regime.
func (c *Converter) OrbitClampEngaged(orbitRadiusKm, parentRadiusKm float64, parentClass model.BodyClass, regime ScaleRegime) bool {
	f := c.factors[regime]
	orbit := orbitRadiusKm * f.DistancePerKm * f.MoonOrbitBoost
	parent := c.ToDisplayRadius(parentRadiusKm, parentClass, regime)
	return orbit < parent+f.MoonOrbitMargin
}
