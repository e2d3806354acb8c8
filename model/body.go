package model

// BodyClass broadly categorises a celestial body for scaling decisions.
type BodyClass int

const (
	BodyClassUnknown BodyClass = iota
	BodyClassStar
	BodyClassPlanet
	BodyClassMoon
	BodyClassSpacecraft
)

// String returns the lowercase class name used in configs and logs.
func (c BodyClass) String() string {
	switch c {
	case BodyClassStar:
		return "star"
	case BodyClassPlanet:
		return "planet"
	case BodyClassMoon:
		return "moon"
	case BodyClassSpacecraft:
		return "spacecraft"
	default:
		return "unknown"
	}
}

// DistanceUnit identifies which physical unit family a distance belongs to.
// Heliocentric orbits are specified in astronomical units, planetocentric
// orbits (moons, spacecraft) in kilometres.
type DistanceUnit int

const (
	UnitAU DistanceUnit = iota
	UnitKm
)

// OrbitalElements is the immutable per-body Keplerian element set.
// Angles are stored in radians, the semi-major axis in the unit family given
// by Unit, and periods in seconds. It is populated once at catalog load and
// never mutated at runtime.
type OrbitalElements struct {
	SemiMajorAxis  float64 // AU or km, per Unit
	Unit           DistanceUnit
	Eccentricity   float64
	Inclination    float64 // rad
	AscendingNode  float64 // rad, longitude of ascending node
	ArgPeriapsis   float64 // rad, argument of periapsis
	MeanAnomaly0   float64 // rad, mean anomaly at epoch
	Period         float64 // s, orbital period
	RotationPeriod float64 // s; 0 on an orbiting body means tidally locked
	AxialTiltDeg   float64 // deg, tilt of the equator against the orbital plane
}

// BodyDefinition describes one catalog entry: a star, planet, moon, or the
// tracked spacecraft. Parent is empty for the central star.
type BodyDefinition struct {
	Name     string
	Class    BodyClass
	Parent   string
	RadiusKm float64
	Elements OrbitalElements
	Tracked  bool // position comes from the live tracking pipeline
}
