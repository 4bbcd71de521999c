package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imu-fusion/models"
	"imu-fusion/services/fusion"
	"imu-fusion/utils"
)

func settings(rate int) models.Settings {
	return models.Settings{
		SampleRate:            rate,
		Convention:            models.NWU,
		Gain:                  0.5,
		GyroscopeRange:        2000,
		AccelerationRejection: 10,
		MagneticRejection:     10,
		RecoveryTriggerPeriod: 4 * rate,
	}
}

func quietConfig() utils.SimulationConfig {
	return utils.SimulationConfig{
		Seed:            1,
		FieldHorizontal: 20,
		FieldVertical:   45,
	}
}

func TestSimulatorLevelAndStill(t *testing.T) {
	sim := NewIMUSimulator(quietConfig(), settings(10))
	samples := sim.Generate(5)

	for i, s := range samples {
		assert.InDelta(t, float64(i)/10, s.Timestamp, 1e-12)
		assert.Equal(t, r3.Vector{}, s.Gyroscope)
		assert.Equal(t, r3.Vector{Z: 1}, s.Accelerometer)
		assert.Equal(t, r3.Vector{X: 20, Z: -45}, s.Magnetometer)
	}
}

func TestSimulatorConventions(t *testing.T) {
	s := settings(10)
	s.Convention = models.NED
	sample := NewIMUSimulator(quietConfig(), s).Next()
	assert.Equal(t, r3.Vector{Z: -1}, sample.Accelerometer)
	assert.Equal(t, r3.Vector{X: 20, Z: 45}, sample.Magnetometer)

	s.Convention = models.ENU
	sample = NewIMUSimulator(quietConfig(), s).Next()
	assert.Equal(t, r3.Vector{Z: 1}, sample.Accelerometer)
	assert.InDelta(t, 20, sample.Magnetometer.Y, 1e-12)
}

func TestSimulatorDeterministic(t *testing.T) {
	cfg := utils.DefaultFusionConfig().Simulation
	cfg.GyroBias = r3.Vector{X: 0.3}

	a := NewIMUSimulator(cfg, settings(50)).Generate(200)
	b := NewIMUSimulator(cfg, settings(50)).Generate(200)
	assert.Equal(t, a, b)

	cfg.Seed = 2
	c := NewIMUSimulator(cfg, settings(50)).Generate(200)
	assert.NotEqual(t, a, c)
}

func TestSimulatorRotation(t *testing.T) {
	cfg := quietConfig()
	cfg.RotationRate = r3.Vector{Z: 90}
	sim := NewIMUSimulator(cfg, settings(100))

	samples := sim.Generate(101)
	assert.InDelta(t, 90, sim.Truth().Yaw, 1e-9)
	assert.Equal(t, r3.Vector{Z: 90}, samples[100].Gyroscope)
	// north now lies along the sensor's -Y
	assert.InDelta(t, -20, samples[100].Magnetometer.Y, 1e-9)
}

func TestSimulatorDisturbanceWindow(t *testing.T) {
	cfg := quietConfig()
	cfg.Disturbances = []utils.DisturbanceConfig{
		{Kind: utils.DisturbAcceleration, StartSeconds: 1, DurationSeconds: 0.5, Magnitude: 0.8},
		{Kind: utils.DisturbMagnetic, StartSeconds: 0.2, DurationSeconds: 0.05, Magnitude: 30},
	}
	samples := NewIMUSimulator(cfg, settings(10)).Generate(20)

	for i, s := range samples {
		wantAccel := 0.0
		if i >= 10 && i < 15 {
			wantAccel = 0.8
		}
		wantMag := 20.0
		if i == 2 {
			wantMag = 50
		}
		assert.InDelta(t, wantAccel, s.Accelerometer.X, 1e-12, "sample %d", i)
		assert.InDelta(t, wantMag, s.Magnetometer.X, 1e-12, "sample %d", i)
	}
}

func TestSimulatorFeedsPipeline(t *testing.T) {
	cfg := utils.DefaultFusionConfig().Simulation
	cfg.Orientation = models.Euler{Roll: 10, Pitch: -5, Yaw: 30}
	cfg.GyroBias = r3.Vector{X: 0.4, Y: -0.2, Z: 0.1}
	s := settings(50)

	sim := NewIMUSimulator(cfg, s)
	p, err := fusion.NewPipeline(s, false)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), sim.Generate(1000))
	require.NoError(t, err)

	got, want := fusion.ToEuler(p.Quaternion()), sim.Truth()
	assert.InDelta(t, want.Roll, got.Roll, 2)
	assert.InDelta(t, want.Pitch, got.Pitch, 2)
	assert.InDelta(t, want.Yaw, got.Yaw, 2)
	assert.Greater(t, p.Bias().X, 0.0)
}

func TestSimulatorRealTime(t *testing.T) {
	sim := NewIMUSimulator(quietConfig(), settings(200))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	sim.Start(ctx)

	var n uint64
	last := -1.0
	for s := range sim.Out {
		assert.Greater(t, s.Timestamp, last)
		last = s.Timestamp
		n++
	}
	produced, _ := sim.Stats()
	assert.Positive(t, n)
	assert.Equal(t, produced, n)
}
