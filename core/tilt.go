package core

import "math"

// ApplyParentTilt rotates a position computed in the parent's equatorial
// plane into the parent's orbital-plane frame by rotating about the frame's
// X axis by the parent's axial tilt. Zero tilt is the identity; the same
// formula covers retrograde tilts up to 180° with no special case.
func ApplyParentTilt(localEquatorial Vec3, parentAxialTiltDegrees float64) Vec3 {
	if parentAxialTiltDegrees == 0 {
		return localEquatorial
	}
	tilt := parentAxialTiltDegrees * math.Pi / 180
	return mulVec3(R1(-tilt), localEquatorial)
}
