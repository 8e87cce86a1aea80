package sim

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// CorrespondenceSet holds matched point pairs where X2[i] ≈ R·X1[i] + noise.
// X1 entries are unit vectors; X2 entries are not renormalized.
type CorrespondenceSet struct {
	X1 []r3.Vec
	X2 []r3.Vec
}

// Len returns the number of correspondences.
func (s CorrespondenceSet) Len() int {
	return len(s.X1)
}

// Batch is the output of a Generator: one rotation and one correspondence
// set per entry, indexed [rotation][point].
type Batch struct {
	R  []Rotation
	X1 [][]r3.Vec
	X2 [][]r3.Vec
}

// Len returns the number of rotations in the batch.
func (b *Batch) Len() int {
	return len(b.R)
}

// Set returns the correspondence set for rotation i.
func (b *Batch) Set(i int) CorrespondenceSet {
	return CorrespondenceSet{X1: b.X1[i], X2: b.X2[i]}
}

// NoiseSpec describes additive Gaussian noise on observed points.
// PerPoint, when set, holds one standard deviation per point index and
// overrides Sigma.
type NoiseSpec struct {
	Sigma    float64
	PerPoint []float64
}

// UniformNoise returns a NoiseSpec with the same standard deviation for every point.
func UniformNoise(sigma float64) NoiseSpec {
	return NoiseSpec{Sigma: sigma}
}

// StdDev returns the standard deviation for point index p. The value scales
// all three coordinates of that point and is shared by every rotation.
func (n NoiseSpec) StdDev(p int) float64 {
	if n.PerPoint != nil {
		return n.PerPoint[p]
	}
	return n.Sigma
}

// Variances returns σ² for each of the given number of points.
func (n NoiseSpec) Variances(points int) []float64 {
	out := make([]float64, points)
	for p := range out {
		s := n.StdDev(p)
		out[p] = s * s
	}
	return out
}
