package tracking

import (
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/WinnCook/real-time-iss-visualization-sub001/core"
)

// SGP4Fallback is the deterministic simulated model: it propagates a pinned
// two-line element set with SGP4 and returns Earth-centred positions in km.
// The same inputs always yield the same position, so the simulated mode never
// jitters.
type SGP4Fallback struct {
	sat satellite.Satellite
}

// NewSGP4Fallback constructs a fallback model from TLE lines.
func NewSGP4Fallback(line1, line2 string) *SGP4Fallback {
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &SGP4Fallback{sat: sat}
}

// PositionAt propagates the element set to t and rotates the ECI result into
// the Earth-fixed frame. go-satellite works in kilometres throughout.
func (m *SGP4Fallback) PositionAt(t time.Time) core.Vec3 {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	return core.Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
}
