package sim

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"
)

// SampleRotations draws count random rotations. Each has an axis uniform on
// the unit sphere and an angle uniform in [0, maxAngle] radians. A maxAngle
// of zero or less means π, the full range of rotation angles.
//
// The result always has length count, including count == 1.
func SampleRotations(rng *rand.Rand, count int, maxAngle float64) []Rotation {
	if maxAngle <= 0 {
		maxAngle = math.Pi
	}
	rots := make([]Rotation, count)
	for i := range rots {
		axis := RandomUnitVector(rng)
		angle := maxAngle * rng.Float64()
		rots[i] = Exp(r3.Scale(angle, axis))
	}
	return rots
}

// SampleGaussianRotations draws count rotations as the exponential map of
// standard normal axis-angle vectors.
func SampleGaussianRotations(rng *rand.Rand, count int) []Rotation {
	rots := make([]Rotation, count)
	for i := range rots {
		rots[i] = Exp(gaussianVector(rng))
	}
	return rots
}

// RandomUnitVector returns a vector uniformly distributed on the unit sphere.
func RandomUnitVector(rng *rand.Rand) r3.Vec {
	for {
		v := gaussianVector(rng)
		if n := r3.Norm(v); n > 0 {
			return r3.Scale(1/n, v)
		}
	}
}

func gaussianVector(rng *rand.Rand) r3.Vec {
	return r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
}
