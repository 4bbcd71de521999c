package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imu-fusion/models"
)

func TestReporterSummary(t *testing.T) {
	r := NewReporter(true)
	outs := []models.Output{
		{
			Index: 0,
			Flags: models.Flags{Initialising: true},
			State: models.InternalState{AccelerationError: 2, MagneticError: 4},
		},
		{
			Index: 1,
			Flags: models.Flags{AngularRateRecovery: true, AccelerationRecovery: true},
			State: models.InternalState{AccelerationError: 12, AccelerometerIgnored: true, AccelerationRecoveryTrigger: 61, MagneticError: 1},
		},
		{
			Index: 2,
			Euler: models.Euler{Roll: 1, Pitch: 2, Yaw: 3},
			Flags: models.Flags{MagneticRecovery: true},
			State: models.InternalState{AccelerationError: 1, MagnetometerIgnored: true, MagneticError: 30},
		},
	}
	for _, o := range outs {
		r.Record(o)
	}

	s := r.Summary()
	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, 1, s.InitialisingSamples)
	assert.Equal(t, 1, s.AngularRateRecoveries)
	assert.Equal(t, 1, s.AccelerometerIgnored)
	assert.Equal(t, 1, s.MagnetometerIgnored)
	assert.Equal(t, 1, s.AccelerationRecoveries)
	assert.Equal(t, 1, s.MagneticRecoveries)
	assert.Equal(t, 12.0, s.MaxAccelerationError)
	assert.Equal(t, 30.0, s.MaxMagneticError)
	assert.InDelta(t, 5, s.MeanAccelerationError, 1e-12)
	assert.InDelta(t, 35.0/3, s.MeanMagneticError, 1e-12)
	assert.Equal(t, models.Euler{Roll: 1, Pitch: 2, Yaw: 3}, s.Last)

	assert.Equal(t, outs, r.Records())
	assert.Equal(t, 3, r.Len())
}

func TestReporterRecordsAreCopies(t *testing.T) {
	r := NewReporter(true)
	r.Record(models.Output{Index: 0})

	got := r.Records()
	require.Len(t, got, 1)
	got[0].Index = 99
	assert.Equal(t, 0, r.Records()[0].Index)
}

func TestReporterWithoutRetain(t *testing.T) {
	r := NewReporter(false)
	for i := 0; i < 10; i++ {
		r.Record(models.Output{Index: i})
	}
	assert.Nil(t, r.Records())
	assert.Equal(t, 10, r.Len())
	assert.Equal(t, 10, r.Summary().Samples)
}
