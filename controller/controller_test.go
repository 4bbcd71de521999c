package controller

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imu-fusion/models"
	"imu-fusion/services/fusion"
	"imu-fusion/utils"
	"imu-fusion/views"
)

func testConfig() *utils.FusionConfig {
	cfg := utils.DefaultFusionConfig()
	cfg.Fusion.SampleRate = 50
	cfg.Simulation.Orientation = models.Euler{Roll: 5, Pitch: -10, Yaw: 20}
	cfg.Simulation.Disturbances = []utils.DisturbanceConfig{
		{Kind: utils.DisturbAcceleration, StartSeconds: 6, DurationSeconds: 5, Magnitude: 1},
		{Kind: utils.DisturbMagnetic, StartSeconds: 11.5, DurationSeconds: 5.5, Magnitude: -100},
	}
	return &cfg
}

func testStorage(t *testing.T) *utils.StorageConfig {
	var s utils.StorageConfig
	s.Storage.BaseDir = t.TempDir()
	s.Storage.SessionPrefix = "test"
	s.Storage.CSV.WriteHeader = true
	s.Storage.CSV.FlushIntervalMs = 10
	return &s
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestBatchPipeline(t *testing.T) {
	cfg := testConfig()
	settings := cfg.Settings()
	const n = 900

	pipeline, err := fusion.NewPipeline(settings, false)
	require.NoError(t, err)
	metrics := NewMetrics(prometheus.NewRegistry())

	sensors := NewSensorsController(cfg)
	fc := NewFusionController(pipeline, metrics)
	rc, err := NewRecordingController(testStorage(t), settings, nil)
	require.NoError(t, err)

	ctx := context.Background()
	sensors.StartBatch(ctx, n)
	fc.Start(ctx, sensors.SampleCh)
	rc.Start(fc.Out)
	require.NoError(t, rc.Stop())

	processed, rejected := fc.Stats()
	assert.Equal(t, uint64(n), processed)
	assert.Zero(t, rejected)
	assert.Equal(t, uint64(n), rc.RowsWritten())
	assert.Equal(t, float64(n), testutil.ToFloat64(metrics.Samples))

	euler := readCSV(t, filepath.Join(rc.SessionDir(), views.StreamEuler.FileName()))
	require.Len(t, euler, n+1)
	assert.Equal(t, []string{"Timestamp", "Roll", "Pitch", "Yaw"}, euler[0])
	assert.Equal(t, "0.000000", euler[1][0])

	diag := readCSV(t, filepath.Join(rc.SessionDir(), views.StreamDiagnostics.FileName()))
	require.Len(t, diag, n+1)
	assert.Equal(t, strconv.Itoa(n-1), diag[n][0])

	samples := readCSV(t, filepath.Join(rc.SessionDir(), views.StreamSamples.FileName()))
	require.Len(t, samples, n+1)

	sum := rc.Summary()
	assert.Equal(t, n, sum.Samples)
	assert.Equal(t, 3*settings.SampleRate, sum.InitialisingSamples)
	// a 1 g sideways push for 5 s outlasts the 4 s recovery period
	assert.Positive(t, sum.AccelerometerIgnored)
	assert.Positive(t, sum.AccelerationRecoveries)
	// so does a 5.5 s interferer swamping the horizontal field
	assert.Positive(t, sum.MagnetometerIgnored)
	assert.Positive(t, sum.MagneticRecoveries)
	assert.Equal(t, sum.Last, fc.Orientation())
}

func TestFusionControllerSkipsInvalidSamples(t *testing.T) {
	cfg := testConfig()
	pipeline, err := fusion.NewPipeline(cfg.Settings(), false)
	require.NoError(t, err)
	metrics := NewMetrics(prometheus.NewRegistry())
	fc := NewFusionController(pipeline, metrics)

	in := make(chan *models.Sample, 4)
	up := cfg.Settings().Convention.Up()
	in <- &models.Sample{Timestamp: 0, Accelerometer: up}
	in <- &models.Sample{Timestamp: 0, Accelerometer: up} // repeated timestamp
	in <- &models.Sample{Timestamp: 0.02, Accelerometer: up}
	close(in)

	fc.Start(context.Background(), in)
	var got []*models.Record
	for rec := range fc.Out {
		got = append(got, rec)
	}

	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Output.Index)
	assert.Equal(t, 1, got[1].Output.Index)
	assert.Equal(t, 0.02, got[1].Sample.Timestamp)
	processed, rejected := fc.Stats()
	assert.Equal(t, uint64(2), processed)
	assert.Equal(t, uint64(1), rejected)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Rejected))
}

func TestRealTimePipelineStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Fusion.SampleRate = 200
	settings := cfg.Settings()

	pipeline, err := fusion.NewPipeline(settings, false)
	require.NoError(t, err)
	sensors := NewSensorsController(cfg)
	fc := NewFusionController(pipeline, nil)
	rc, err := NewRecordingController(testStorage(t), settings, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	sensors.Start(ctx)
	fc.Start(ctx, sensors.SampleCh)
	rc.Start(fc.Out)

	<-ctx.Done()
	require.NoError(t, rc.Stop())

	processed, _ := fc.Stats()
	assert.Positive(t, processed)
	assert.Equal(t, processed, rc.RowsWritten())
	assert.Equal(t, int(processed), rc.Summary().Samples)
}

func TestRecordingControllerRefusesExistingSession(t *testing.T) {
	storage := testStorage(t)
	rc, err := NewRecordingController(storage, testConfig().Settings(), nil)
	require.NoError(t, err)
	defer rc.Stop()

	_, err = NewRecordingController(storage, testConfig().Settings(), nil)
	if err == nil {
		t.Skip("second clock tick; session names differ")
	}
	assert.Contains(t, err.Error(), "already exists")
}
