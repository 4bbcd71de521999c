package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/num/quat"

	"imu-fusion/models"
)

func TestEulerRoundTrip(t *testing.T) {
	for _, e := range []models.Euler{
		{},
		{Roll: 30},
		{Pitch: 30},
		{Yaw: 30},
		{Roll: 10, Pitch: -20, Yaw: 30},
		{Roll: -170, Pitch: 60, Yaw: 120},
		{Roll: 179, Pitch: -89, Yaw: -179},
		{Roll: 45, Pitch: 45, Yaw: 45},
	} {
		q := FromEuler(e)
		assert.InDelta(t, 1, quat.Abs(q), 1e-12)

		got := ToEuler(q)
		assert.InDelta(t, e.Roll, got.Roll, 1e-7, "%+v", e)
		assert.InDelta(t, e.Pitch, got.Pitch, 1e-7, "%+v", e)
		assert.InDelta(t, e.Yaw, got.Yaw, 1e-7, "%+v", e)
		sameRotation(t, q, FromEuler(got), 1e-12)
	}
}

func TestEulerGimbalLock(t *testing.T) {
	t.Run("pitch up", func(t *testing.T) {
		q := FromEuler(models.Euler{Roll: 10, Pitch: 90, Yaw: 30})
		got := ToEuler(q)
		assert.Equal(t, 90.0, got.Pitch)
		assert.Zero(t, got.Roll)
		assert.InDelta(t, 20, got.Yaw, 1e-6)
		sameRotation(t, q, FromEuler(got), 1e-12)
	})

	t.Run("pitch down", func(t *testing.T) {
		q := FromEuler(models.Euler{Roll: 10, Pitch: -90, Yaw: 30})
		got := ToEuler(q)
		assert.Equal(t, -90.0, got.Pitch)
		assert.Zero(t, got.Roll)
		assert.InDelta(t, 40, got.Yaw, 1e-6)
		sameRotation(t, q, FromEuler(got), 1e-12)
	})

	t.Run("on the boundary", func(t *testing.T) {
		h := math.Sqrt(0.5)
		got := ToEuler(quat.Number{Real: h, Jmag: h})
		assert.False(t, math.IsNaN(got.Pitch))
		assert.Equal(t, 90.0, got.Pitch)
	})
}

func TestToEulerNormalises(t *testing.T) {
	q := FromEuler(models.Euler{Roll: 12, Pitch: 34, Yaw: 56})
	got := ToEuler(quat.Scale(3, q))
	assert.InDelta(t, 12, got.Roll, 1e-7)
	assert.InDelta(t, 34, got.Pitch, 1e-7)
	assert.InDelta(t, 56, got.Yaw, 1e-7)
}

func TestToEulerSignIndependent(t *testing.T) {
	q := FromEuler(models.Euler{Roll: -40, Pitch: 15, Yaw: 170})
	a, b := ToEuler(q), ToEuler(quat.Scale(-1, q))
	assert.InDelta(t, a.Roll, b.Roll, 1e-9)
	assert.InDelta(t, a.Pitch, b.Pitch, 1e-9)
	assert.InDelta(t, a.Yaw, b.Yaw, 1e-9)
}

func TestWrapDegrees(t *testing.T) {
	assert.Equal(t, 180.0, wrapDegrees(-180))
	assert.Equal(t, 180.0, wrapDegrees(180))
	assert.Equal(t, -90.0, wrapDegrees(270))
	assert.Equal(t, 10.0, wrapDegrees(-350))
}
