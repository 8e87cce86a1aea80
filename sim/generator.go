package sim

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/r3"
)

// Generator produces rotations and noisy correspondence sets.
// Implementations share one output contract: X1 and X2 are indexed
// [rotation][point], X1 is unit-normalized per point and X2 is not.
type Generator interface {
	Generate(rotations, points int) (*Batch, error)
	Name() string
}

// Beachball quadrants, by the signs of the first two coordinates of x_1.
const (
	QuadrantNegNeg = iota // x < 0, y < 0
	QuadrantPosNeg        // x >= 0, y < 0
	QuadrantNegPos        // x < 0, y >= 0
	QuadrantPosPos        // x >= 0, y >= 0
)

// UniformGenerator draws unit vectors independently per rotation and point
// and adds isotropic Gaussian noise.
type UniformGenerator struct {
	Noise    NoiseSpec
	MaxAngle float64 // radians; <= 0 means π
	RNG      *rand.Rand
}

// Name implements Generator.
func (g *UniformGenerator) Name() string { return "uniform" }

// Generate implements Generator.
func (g *UniformGenerator) Generate(rotations, points int) (*Batch, error) {
	if g.Noise.PerPoint != nil && len(g.Noise.PerPoint) != points {
		return nil, fmt.Errorf("per-point noise has %d entries, want %d", len(g.Noise.PerPoint), points)
	}

	b := &Batch{
		R:  SampleRotations(g.RNG, rotations, g.MaxAngle),
		X1: make([][]r3.Vec, rotations),
		X2: make([][]r3.Vec, rotations),
	}
	for r := 0; r < rotations; r++ {
		x1 := make([]r3.Vec, points)
		for p := range x1 {
			x1[p] = RandomUnitVector(g.RNG)
		}
		b.X1[r] = x1
		b.X2[r] = rotateAndPerturb(g.RNG, b.R[r], x1, g.Noise.StdDev)
	}
	return b, nil
}

// BeachballGenerator draws one shared pool of unit vectors for the whole
// batch and scales the noise per planar quadrant of each vector.
type BeachballGenerator struct {
	Sigma   float64
	Factors [4]float64 // indexed by quadrant
	RNG     *rand.Rand
}

// Name implements Generator.
func (g *BeachballGenerator) Name() string { return "beachball" }

// Generate implements Generator.
func (g *BeachballGenerator) Generate(rotations, points int) (*Batch, error) {
	rots := SampleGaussianRotations(g.RNG, rotations)

	// Pool index j = r*points + p.
	pool := make([]r3.Vec, rotations*points)
	for j := range pool {
		pool[j] = RandomUnitVector(g.RNG)
	}

	noise := make([]r3.Vec, len(pool))
	for q, mask := range QuadrantMasks(pool) {
		std := g.Factors[q] * g.Sigma
		for j, in := range mask {
			if in {
				noise[j] = r3.Scale(std, gaussianVector(g.RNG))
			}
		}
	}

	b := &Batch{
		R:  rots,
		X1: make([][]r3.Vec, rotations),
		X2: make([][]r3.Vec, rotations),
	}
	for r := 0; r < rotations; r++ {
		x1 := pool[r*points : (r+1)*points : (r+1)*points]
		x2 := make([]r3.Vec, points)
		for p := range x1 {
			x2[p] = r3.Add(rots[r].Apply(x1[p]), noise[r*points+p])
		}
		b.X1[r] = x1
		b.X2[r] = x2
	}
	return b, nil
}

// PlanarProjection drops the third coordinate of v.
func PlanarProjection(v r3.Vec) orb.Point {
	return orb.Point{v.X, v.Y}
}

// Quadrant returns the beachball quadrant of a planar point. Zero
// coordinates count as non-negative so every point has exactly one quadrant.
func Quadrant(p orb.Point) int {
	switch {
	case p.X() < 0 && p.Y() < 0:
		return QuadrantNegNeg
	case p.Y() < 0:
		return QuadrantPosNeg
	case p.X() < 0:
		return QuadrantNegPos
	default:
		return QuadrantPosPos
	}
}

// QuadrantMasks partitions points into the four beachball quadrants.
// masks[q][j] is true when point j lies in quadrant q.
func QuadrantMasks(points []r3.Vec) [4][]bool {
	var masks [4][]bool
	for q := range masks {
		masks[q] = make([]bool, len(points))
	}
	for j, v := range points {
		masks[Quadrant(PlanarProjection(v))][j] = true
	}
	return masks
}

// GridGenerator samples unit vectors from a fixed (x, y, sin x·cos y)
// surface over [-1, 1]², one random subset per rotation.
type GridGenerator struct {
	Noise   NoiseSpec
	GridDim int // points per grid axis, default 50
	RNG     *rand.Rand
}

// Name implements Generator.
func (g *GridGenerator) Name() string { return "grid" }

// Generate implements Generator.
func (g *GridGenerator) Generate(rotations, points int) (*Batch, error) {
	grid := SurfaceGrid(g.GridDim)
	if points > len(grid) {
		return nil, fmt.Errorf("grid has %d points, need %d", len(grid), points)
	}

	b := &Batch{
		R:  SampleGaussianRotations(g.RNG, rotations),
		X1: make([][]r3.Vec, rotations),
		X2: make([][]r3.Vec, rotations),
	}
	for r := 0; r < rotations; r++ {
		ids := g.RNG.Perm(len(grid))[:points]
		x1 := make([]r3.Vec, points)
		for p, id := range ids {
			x1[p] = grid[id]
		}
		b.X1[r] = x1
		b.X2[r] = rotateAndPerturb(g.RNG, b.R[r], x1, g.Noise.StdDev)
	}
	return b, nil
}

// SurfaceGrid returns the normalized (x, y, sin x·cos y) samples of a dim×dim
// grid over [-1, 1]². dim <= 1 falls back to 50.
func SurfaceGrid(dim int) []r3.Vec {
	if dim <= 1 {
		dim = 50
	}
	step := 2.0 / float64(dim-1)
	out := make([]r3.Vec, 0, dim*dim)
	for i := 0; i < dim; i++ {
		y := -1 + float64(i)*step
		for j := 0; j < dim; j++ {
			x := -1 + float64(j)*step
			out = append(out, r3.Unit(r3.Vec{X: x, Y: y, Z: math.Sin(x) * math.Cos(y)}))
		}
	}
	return out
}

// GenerateSet draws one rotation from a standard normal axis-angle vector and
// n correspondences with the given noise. With shuffle set, the pairs are
// permuted in unison.
func GenerateSet(rng *rand.Rand, n int, noise NoiseSpec, shuffle bool) (Rotation, CorrespondenceSet) {
	rot := Exp(gaussianVector(rng))
	x1 := make([]r3.Vec, n)
	for i := range x1 {
		x1[i] = RandomUnitVector(rng)
	}
	x2 := rotateAndPerturb(rng, rot, x1, noise.StdDev)

	if shuffle {
		perm := rng.Perm(n)
		s1 := make([]r3.Vec, n)
		s2 := make([]r3.Vec, n)
		for i, j := range perm {
			s1[i], s2[i] = x1[j], x2[j]
		}
		x1, x2 = s1, s2
	}
	return rot, CorrespondenceSet{X1: x1, X2: x2}
}

// rotateAndPerturb returns R·x1[p] + std(p)·n with n ~ N(0, I₃).
func rotateAndPerturb(rng *rand.Rand, rot Rotation, x1 []r3.Vec, std func(p int) float64) []r3.Vec {
	x2 := make([]r3.Vec, len(x1))
	for p, v := range x1 {
		x2[p] = r3.Add(rot.Apply(v), r3.Scale(std(p), gaussianVector(rng)))
	}
	return x2
}
