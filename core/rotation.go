package core

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

// R1 is the frame rotation matrix about the 1st (X) axis.
func R1(x float64) *mat64.Dense {
	s, c := math.Sincos(x)
	return mat64.NewDense(3, 3, []float64{1, 0, 0, 0, c, s, 0, -s, c})
}

// R3 is the frame rotation matrix about the 3rd (Z) axis.
func R3(x float64) *mat64.Dense {
	s, c := math.Sincos(x)
	return mat64.NewDense(3, 3, []float64{c, s, 0, -s, c, 0, 0, 0, 1})
}

// mulVec3 applies a 3x3 matrix to a vector. No dimension check.
func mulVec3(m *mat64.Dense, v Vec3) Vec3 {
	in := mat64.NewVector(3, []float64{v.X, v.Y, v.Z})
	var out mat64.Vector
	out.MulVec(m, in)
	return Vec3{X: out.At(0, 0), Y: out.At(1, 0), Z: out.At(2, 0)}
}

// perifocalToReference rotates a position from the perifocal (orbital-plane)
// frame into the parent's reference frame using the standard 3-1-3 sequence:
// argument of periapsis, inclination, longitude of ascending node.
func perifocalToReference(v Vec3, argPeriapsis, inclination, ascendingNode float64) Vec3 {
	v = mulVec3(R3(-argPeriapsis), v)
	v = mulVec3(R1(-inclination), v)
	return mulVec3(R3(-ascendingNode), v)
}
