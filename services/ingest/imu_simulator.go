package ingest

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"imu-fusion/models"
	"imu-fusion/services/fusion"
	"imu-fusion/utils"
)

// IMUSimulator synthesises a deterministic IMU stream from a known true
// orientation: the gyroscope reads the configured rotation rate plus bias
// and noise, and the accelerometer and magnetometer read the earth's up
// and field vectors expressed in the sensor frame. Configured disturbance
// windows push one reference sensor off its true direction.
//
// The same seed always yields the same samples, in batch (Generate) or
// real-time (Start) mode. Once Start has been called the simulator belongs
// to its goroutine; do not call Next, Generate or Truth concurrently.
type IMUSimulator struct {
	cfg   utils.SimulationConfig
	rate  int
	up    r3.Vector
	field r3.Vector

	rng   *rand.Rand
	truth quat.Number
	last  quat.Number
	index int

	Out      chan *models.Sample
	dropped  uint64
	produced uint64
}

func NewIMUSimulator(cfg utils.SimulationConfig, settings models.Settings) *IMUSimulator {
	buf := cfg.ChannelBuffer
	if buf <= 0 {
		buf = 512
	}
	conv := settings.Convention
	up := conv.Up()
	north := conv.West().Cross(up)
	start := fusion.FromEuler(cfg.Orientation)
	return &IMUSimulator{
		cfg:   cfg,
		rate:  settings.SampleRate,
		up:    up,
		field: north.Mul(cfg.FieldHorizontal).Sub(up.Mul(cfg.FieldVertical)),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		truth: start,
		last:  start,
		Out:   make(chan *models.Sample, buf),
	}
}

// Next returns the next sample and advances the true orientation by one
// sample period.
func (s *IMUSimulator) Next() models.Sample {
	t := utils.SampleTime(0, s.index, s.rate)

	accel := fusion.RotateInto(s.truth, s.up).Add(s.noise(s.cfg.AccelNoise))
	mag := fusion.RotateInto(s.truth, s.field).Add(s.noise(s.cfg.MagNoise))
	for _, d := range s.cfg.Disturbances {
		if t < d.StartSeconds || t >= d.StartSeconds+d.DurationSeconds {
			continue
		}
		push := r3.Vector{X: d.Magnitude}
		switch d.Kind {
		case utils.DisturbAcceleration:
			accel = accel.Add(push)
		case utils.DisturbMagnetic:
			mag = mag.Add(push)
		}
	}

	sample := models.Sample{
		Timestamp:     t,
		Gyroscope:     s.cfg.RotationRate.Add(s.cfg.GyroBias).Add(s.noise(s.cfg.GyroNoise)),
		Accelerometer: accel,
		Magnetometer:  mag,
	}

	s.last = s.truth
	s.truth = advance(s.truth, s.cfg.RotationRate, 1/float64(s.rate))
	s.index++
	return sample
}

// Generate returns the next n samples.
func (s *IMUSimulator) Generate(n int) []models.Sample {
	out := make([]models.Sample, n)
	for i := range out {
		out[i] = s.Next()
	}
	return out
}

// Truth returns the true orientation of the most recent sample.
func (s *IMUSimulator) Truth() models.Euler {
	return fusion.ToEuler(s.last)
}

// Start streams samples on Out at the configured rate until ctx is done.
// A full channel drops the sample; its timestamp is skipped downstream.
func (s *IMUSimulator) Start(ctx context.Context) {
	go s.run(ctx)
	utils.L().Info("imu simulator started  (rate=%dHz, buffer=%d, seed=%d)",
		s.rate, cap(s.Out), s.cfg.Seed)
}

func (s *IMUSimulator) run(ctx context.Context) {
	defer close(s.Out)

	ticker := time.NewTicker(utils.SamplePeriod(s.rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			utils.L().Info("imu simulator stopped  (produced=%d, dropped=%d)",
				atomic.LoadUint64(&s.produced), atomic.LoadUint64(&s.dropped))
			return
		case <-ticker.C:
			sample := s.Next()

			select {
			case s.Out <- &sample:
				atomic.AddUint64(&s.produced, 1)
			default:
				atomic.AddUint64(&s.dropped, 1)
			}
		}
	}
}

// Stats returns how many samples were delivered and dropped.
func (s *IMUSimulator) Stats() (uint64, uint64) {
	return atomic.LoadUint64(&s.produced), atomic.LoadUint64(&s.dropped)
}

func (s *IMUSimulator) noise(sigma float64) r3.Vector {
	if sigma <= 0 {
		return r3.Vector{}
	}
	return r3.Vector{
		X: s.rng.NormFloat64() * sigma,
		Y: s.rng.NormFloat64() * sigma,
		Z: s.rng.NormFloat64() * sigma,
	}
}

// advance rotates q by the sensor-frame rate (deg/s) held for dt seconds.
func advance(q quat.Number, rate r3.Vector, dt float64) quat.Number {
	n := rate.Norm()
	if n == 0 {
		return q
	}
	half := 0.5 * n * dt * math.Pi / 180
	axis := rate.Mul(math.Sin(half) / n)
	step := quat.Number{Real: math.Cos(half), Imag: axis.X, Jmag: axis.Y, Kmag: axis.Z}
	return quat.Mul(q, step)
}
