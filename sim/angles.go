package sim

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/num/quat"
)

// QuatAngle returns the angle in radians of the rotation taking b to a.
// Both quaternions are normalized first and the sign ambiguity is removed
// by using the nearer of a-b and a+b.
func QuatAngle(a, b Quaternion) float64 {
	a = NormalizeQuat(a)
	b = NormalizeQuat(b)
	d := math.Min(quat.Abs(quat.Sub(a, b)), quat.Abs(quat.Add(a, b)))
	// Chord length d between unit 4-vectors maps to rotation angle 4·asin(d/2).
	return 4 * math.Asin(math.Min(d/2, 1))
}

// QuatAngleDiff returns the mean angular error in degrees between two flat
// (batch, 4) xyzw quaternion buffers.
func QuatAngleDiff(est, truth []float64) float64 {
	n := len(truth) / 4
	if n == 0 {
		return 0
	}
	errs := make([]float64, n)
	for i := range errs {
		errs[i] = QuatAngle(QuatFromXYZW(est[4*i:]), QuatFromXYZW(truth[4*i:]))
	}
	return floats.Sum(errs) / float64(n) * 180 / math.Pi
}

// RotmatAngleDiff returns the mean angular error in degrees between two flat
// (batch, 3, 3) rotation matrix buffers.
func RotmatAngleDiff(est, truth []float64) float64 {
	n := len(truth) / 9
	if n == 0 {
		return 0
	}
	errs := make([]float64, n)
	for i := range errs {
		var a, b Rotation
		copy(a[:], est[9*i:9*i+9])
		copy(b[:], truth[9*i:9*i+9])
		errs[i] = a.Transpose().Mul(b).Angle()
	}
	return floats.Sum(errs) / float64(n) * 180 / math.Pi
}
