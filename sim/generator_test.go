package sim

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func assertUnitX1(t *testing.T, b *Batch) {
	t.Helper()
	for r := range b.X1 {
		for p, v := range b.X1[r] {
			if math.Abs(r3.Norm(v)-1) > 1e-6 {
				t.Fatalf("x_1[%d][%d] has norm %v", r, p, r3.Norm(v))
			}
		}
	}
}

func assertShape(t *testing.T, b *Batch, rotations, points int) {
	t.Helper()
	require.Len(t, b.R, rotations)
	require.Len(t, b.X1, rotations)
	require.Len(t, b.X2, rotations)
	for r := 0; r < rotations; r++ {
		require.Len(t, b.X1[r], points)
		require.Len(t, b.X2[r], points)
	}
}

func TestUniformGenerator_Shape(t *testing.T) {
	g := &UniformGenerator{Noise: UniformNoise(0.01), RNG: newRNG()}
	b, err := g.Generate(7, 13)
	require.NoError(t, err)
	assertShape(t, b, 7, 13)
	assertUnitX1(t, b)
	assert.Equal(t, "uniform", g.Name())
}

func TestUniformGenerator_ZeroNoise(t *testing.T) {
	g := &UniformGenerator{Noise: UniformNoise(0), RNG: newRNG()}
	b, err := g.Generate(5, 20)
	require.NoError(t, err)
	for r := range b.R {
		for p := range b.X1[r] {
			want := b.R[r].Apply(b.X1[r][p])
			assert.InDelta(t, 0, r3.Norm(r3.Sub(want, b.X2[r][p])), 1e-12)
		}
	}
}

func TestUniformGenerator_SingleRotation(t *testing.T) {
	g := &UniformGenerator{Noise: UniformNoise(0.1), RNG: newRNG()}
	b, err := g.Generate(1, 4)
	require.NoError(t, err)
	assertShape(t, b, 1, 4)
}

func TestUniformGenerator_PerPointNoise(t *testing.T) {
	// Only the last point is noisy; the per-point std dev applies to all rotations.
	sigmas := []float64{0, 0, 0, 0.5}
	g := &UniformGenerator{Noise: NoiseSpec{PerPoint: sigmas}, RNG: newRNG()}
	b, err := g.Generate(10, len(sigmas))
	require.NoError(t, err)

	noisy := 0
	for r := range b.R {
		for p := range sigmas {
			d := r3.Norm(r3.Sub(b.R[r].Apply(b.X1[r][p]), b.X2[r][p]))
			if sigmas[p] == 0 {
				assert.InDelta(t, 0, d, 1e-12)
			} else if d > 0 {
				noisy++
			}
		}
	}
	assert.Equal(t, 10, noisy)

	_, err = g.Generate(2, 3)
	assert.Error(t, err, "per-point noise length must match points")
}

func TestUniformGenerator_NoiseScale(t *testing.T) {
	sigma := 0.05
	g := &UniformGenerator{Noise: UniformNoise(sigma), RNG: newRNG()}
	b, err := g.Generate(200, 50)
	require.NoError(t, err)

	sumSq, n := 0.0, 0
	for r := range b.R {
		for p := range b.X1[r] {
			d := r3.Sub(b.X2[r][p], b.R[r].Apply(b.X1[r][p]))
			sumSq += r3.Norm2(d)
			n += 3
		}
	}
	assert.InDelta(t, sigma, math.Sqrt(sumSq/float64(n)), 0.005)
}

func TestQuadrant(t *testing.T) {
	tests := []struct {
		p    orb.Point
		want int
	}{
		{orb.Point{-1, -1}, QuadrantNegNeg},
		{orb.Point{1, -1}, QuadrantPosNeg},
		{orb.Point{-1, 1}, QuadrantNegPos},
		{orb.Point{1, 1}, QuadrantPosPos},
		{orb.Point{0, 0}, QuadrantPosPos},
		{orb.Point{0, -1}, QuadrantPosNeg},
		{orb.Point{-1, 0}, QuadrantNegPos},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Quadrant(tt.p), "point %v", tt.p)
	}
}

func TestBeachballGenerator_QuadrantPartition(t *testing.T) {
	g := &BeachballGenerator{Sigma: 0.01, Factors: [4]float64{1, 2, 3, 4}, RNG: newRNG()}
	b, err := g.Generate(6, 25)
	require.NoError(t, err)
	assertShape(t, b, 6, 25)
	assertUnitX1(t, b)

	var pool []r3.Vec
	for r := range b.X1 {
		pool = append(pool, b.X1[r]...)
	}
	masks := QuadrantMasks(pool)
	for j := range pool {
		count := 0
		for q := range masks {
			if masks[q][j] {
				count++
			}
		}
		assert.Equal(t, 1, count, "point %d must belong to exactly one quadrant", j)
	}
}

func TestBeachballGenerator_PerQuadrantNoise(t *testing.T) {
	// Quadrants with a zero factor must be noiseless, the others noisy.
	factors := [4]float64{0, 1, 0, 1}
	g := &BeachballGenerator{Sigma: 0.1, Factors: factors, RNG: newRNG()}
	b, err := g.Generate(20, 30)
	require.NoError(t, err)

	for r := range b.R {
		for p, v := range b.X1[r] {
			q := Quadrant(PlanarProjection(v))
			d := r3.Norm(r3.Sub(b.X2[r][p], b.R[r].Apply(v)))
			if factors[q] == 0 {
				assert.InDelta(t, 0, d, 1e-12, "quadrant %d should be noiseless", q)
			} else {
				assert.Greater(t, d, 0.0, "quadrant %d should be noisy", q)
			}
		}
	}
}

func TestGridGenerator(t *testing.T) {
	g := &GridGenerator{Noise: UniformNoise(0), GridDim: 10, RNG: newRNG()}
	b, err := g.Generate(3, 40)
	require.NoError(t, err)
	assertShape(t, b, 3, 40)
	assertUnitX1(t, b)

	_, err = g.Generate(1, 101)
	assert.Error(t, err)
}

func TestSurfaceGrid(t *testing.T) {
	grid := SurfaceGrid(5)
	require.Len(t, grid, 25)
	first := r3.Unit(r3.Vec{X: -1, Y: -1, Z: math.Sin(-1) * math.Cos(-1)})
	assert.InDelta(t, first.X, grid[0].X, tol)
	assert.InDelta(t, first.Z, grid[0].Z, tol)
	assert.Len(t, SurfaceGrid(0), 2500)
}

func TestGenerateSet(t *testing.T) {
	rot, set := GenerateSet(newRNG(), 30, UniformNoise(0), false)
	require.Equal(t, 30, set.Len())
	for i := range set.X1 {
		assert.InDelta(t, 1, r3.Norm(set.X1[i]), 1e-12)
		assert.InDelta(t, 0, r3.Norm(r3.Sub(rot.Apply(set.X1[i]), set.X2[i])), 1e-12)
	}
}

func TestGenerateSet_ShuffleKeepsPairs(t *testing.T) {
	rot, set := GenerateSet(newRNG(), 50, UniformNoise(0), true)
	for i := range set.X1 {
		assert.InDelta(t, 0, r3.Norm(r3.Sub(rot.Apply(set.X1[i]), set.X2[i])), 1e-12)
	}
}

func TestNoiseSpec(t *testing.T) {
	n := NoiseSpec{Sigma: 2}
	assert.Equal(t, []float64{4, 4, 4}, n.Variances(3))

	n = NoiseSpec{Sigma: 2, PerPoint: []float64{1, 3}}
	assert.Equal(t, 3.0, n.StdDev(1))
	assert.Equal(t, []float64{1, 9}, n.Variances(2))
}
