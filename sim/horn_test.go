package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestSolveHorn_Noiseless(t *testing.T) {
	rng := newRNG()
	for i := 0; i < 50; i++ {
		rot, set := GenerateSet(rng, 20, UniformNoise(0), false)
		got, err := SolveHorn(set)
		require.NoError(t, err)
		assert.Less(t, got.Transpose().Mul(rot).Angle(), 1e-8)
		assert.InDelta(t, 1, got.Det(), 1e-9)
	}
}

func TestSolveHorn_AvoidsReflection(t *testing.T) {
	// Mirrored targets have a reflection as their best orthogonal fit; the
	// solver must still return a proper rotation.
	rng := newRNG()
	x1 := make([]r3.Vec, 30)
	x2 := make([]r3.Vec, 30)
	for i := range x1 {
		x1[i] = RandomUnitVector(rng)
		x2[i] = r3.Vec{X: x1[i].X, Y: x1[i].Y, Z: -x1[i].Z}
	}
	got, err := SolveHorn(CorrespondenceSet{X1: x1, X2: x2})
	require.NoError(t, err)
	assert.InDelta(t, 1, got.Det(), 1e-9)
	assert.Less(t, got.OrthogonalityError(), 1e-9)
}

func TestMeanHornError(t *testing.T) {
	g := &UniformGenerator{Noise: UniformNoise(0), RNG: newRNG()}
	train, _, err := AssembleFast(g, 30, 1, 10, Double)
	require.NoError(t, err)

	meanErr, err := MeanHornError(train)
	require.NoError(t, err)
	assert.Less(t, meanErr, 1e-5)

	empty := NewDataset(0, 10, false, Double)
	meanErr, err = MeanHornError(empty)
	require.NoError(t, err)
	assert.Equal(t, 0.0, meanErr)
}

func TestMeanHornError_GrowsWithNoise(t *testing.T) {
	low, _, err := AssembleFast(&UniformGenerator{Noise: UniformNoise(0.01), RNG: newRNG()}, 50, 1, 20, Double)
	require.NoError(t, err)
	high, _, err := AssembleFast(&UniformGenerator{Noise: UniformNoise(0.5), RNG: newRNG()}, 50, 1, 20, Double)
	require.NoError(t, err)

	lowErr, err := MeanHornError(low)
	require.NoError(t, err)
	highErr, err := MeanHornError(high)
	require.NoError(t, err)
	assert.Less(t, lowErr, highErr)
}
