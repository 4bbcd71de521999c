package fusion

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imu-fusion/models"
)

func TestOffsetWaitsForTimeout(t *testing.T) {
	o, err := NewOffset(100)
	require.NoError(t, err)

	drift := r3.Vector{X: 0.5, Y: -0.3, Z: 0.2}
	for i := 0; i < 500; i++ {
		assert.Equal(t, drift, o.Update(drift))
	}
	assert.True(t, o.Steady())
	assert.Equal(t, r3.Vector{}, o.Bias())

	o.Update(drift)
	assert.NotEqual(t, r3.Vector{}, o.Bias())
}

func TestOffsetConvergesToBias(t *testing.T) {
	o, err := NewOffset(100)
	require.NoError(t, err)

	drift := r3.Vector{X: 0.5, Y: -0.3, Z: 0.2}
	var out r3.Vector
	for i := 0; i < 30000; i++ {
		out = o.Update(drift)
	}
	assert.InDelta(t, drift.X, o.Bias().X, 1e-6)
	assert.InDelta(t, drift.Y, o.Bias().Y, 1e-6)
	assert.InDelta(t, drift.Z, o.Bias().Z, 1e-6)
	assert.InDelta(t, 0, out.Norm(), 1e-6)
}

func TestOffsetMotionResetsTimer(t *testing.T) {
	o, err := NewOffset(10)
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		o.Update(r3.Vector{Z: 1})
	}
	require.True(t, o.Steady())
	bias := o.Bias()

	out := o.Update(r3.Vector{Z: 1, X: 10})
	assert.False(t, o.Steady())
	assert.Equal(t, bias, o.Bias())
	assert.Equal(t, r3.Vector{X: 10, Z: 1}.Sub(bias), out)

	// stillness must last the full timeout again
	for i := 0; i < 50; i++ {
		o.Update(r3.Vector{Z: 1})
	}
	assert.Equal(t, bias, o.Bias())
}

func TestNewOffsetRejectsRate(t *testing.T) {
	_, err := NewOffset(0)
	var ce *models.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "sample_rate", ce.Field)
}
