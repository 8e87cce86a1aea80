package train

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressTracker(t *testing.T) {
	pt := NewProgressTracker()
	assert.False(t, pt.HasScalars())

	require.NoError(t, pt.AddScalar(SeriesTrainLoss, 0.5, 0))
	require.NoError(t, pt.AddScalar(SeriesTrainLoss, 0.25, 1))
	require.NoError(t, pt.AddScalar(SeriesTestErr, math.NaN(), 0))

	assert.True(t, pt.HasScalars())
	assert.Equal(t, []string{SeriesTrainLoss, SeriesTestErr}, pt.SeriesNames())

	latest := pt.Latest()
	require.NotNil(t, latest[SeriesTrainLoss].Value)
	assert.Equal(t, 0.25, *latest[SeriesTrainLoss].Value)
	assert.Equal(t, 1, latest[SeriesTrainLoss].Step)
	assert.Nil(t, latest[SeriesTestErr].Value, "non-finite values are kept as null")

	points, ok := pt.Series(SeriesTrainLoss)
	require.True(t, ok)
	assert.Len(t, points, 2)
	points[0].Step = 99
	again, _ := pt.Series(SeriesTrainLoss)
	assert.Equal(t, 0, again[0].Step, "Series returns a copy")

	_, ok = pt.Series("nope")
	assert.False(t, ok)

	assert.False(t, pt.Finished())
	require.NoError(t, pt.Close())
	assert.True(t, pt.Finished())
	assert.True(t, pt.HasScalars())
}

func TestProgressTracker_Concurrent(t *testing.T) {
	pt := NewProgressTracker()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = pt.AddScalar(SeriesTrainErr, float64(i), i)
				_ = pt.Latest()
			}
		}()
	}
	wg.Wait()
	points, ok := pt.Series(SeriesTrainErr)
	require.True(t, ok)
	assert.Len(t, points, 400)
}
