package tracking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Initial(t *testing.T) {
	f := NewFilter()
	assert.Equal(t, [stateDim]float64{}, f.State())
	assert.InDelta(t, math.Hypot(100, 100), f.PositionCovNorm(), 1e-9)
	assert.InDelta(t, 200.0, f.Uncertainty(), 1e-9)
}

func TestFilter_CorrectNoiseless(t *testing.T) {
	f := NewFilter()
	f.Predict(0)
	require.NoError(t, f.Correct([measDim]float64{10, 20, 30, 40}, 0))

	s := f.State()
	assert.InDelta(t, 10, s[0], 1e-6)
	assert.InDelta(t, 20, s[1], 1e-6)
	assert.InDelta(t, 30, s[4], 1e-6)
	assert.InDelta(t, 40, s[5], 1e-6)
	assert.Less(t, f.PositionCovNorm(), 1.0)
}

func TestFilter_PredictMovesWithVelocity(t *testing.T) {
	f := NewFilter()
	// Two measurements one second apart establish a velocity.
	f.Predict(0)
	require.NoError(t, f.Correct([measDim]float64{100, 100, 40, 40}, 0))
	f.Predict(1)
	require.NoError(t, f.Correct([measDim]float64{110, 95, 40, 40}, 0))

	before := f.State()
	assert.Greater(t, before[2], 0.0, "x velocity")
	assert.Less(t, before[3], 0.0, "y velocity")

	f.Predict(1)
	after := f.State()
	assert.Greater(t, after[0], before[0])
	assert.Less(t, after[1], before[1])
	assert.InDelta(t, before[4], after[4], 1e-9, "size has no dynamics")
}

func TestFilter_HoldGrowsCovariance(t *testing.T) {
	f := NewFilter()
	f.Predict(0.033)
	require.NoError(t, f.Correct([measDim]float64{100, 100, 40, 40}, 0.5))

	prev := f.PositionCovNorm()
	for i := 0; i < 10; i++ {
		f.Predict(0.033)
		n := f.PositionCovNorm()
		assert.GreaterOrEqual(t, n, prev, "step %d", i)
		prev = n
	}
}

func TestFilter_Clone(t *testing.T) {
	f := NewFilter()
	f.Predict(0.1)
	c := f.Clone()
	require.NoError(t, c.Correct([measDim]float64{50, 50, 20, 20}, 0.1))

	assert.Equal(t, [stateDim]float64{}, f.State(), "original state untouched")
	assert.InDelta(t, 100.05, f.Variance(4), 1e-9, "original covariance untouched")
	assert.NotEqual(t, f.State(), c.State())
}
