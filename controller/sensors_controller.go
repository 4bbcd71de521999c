package controller

import (
	"context"

	"github.com/dustin/go-humanize"

	"imu-fusion/models"
	"imu-fusion/services/ingest"
	"imu-fusion/utils"
)

// SensorsController owns the IMU sample source and exposes its output
// channel to the fusion stage.
type SensorsController struct {
	imu  *ingest.IMUSimulator
	rate int

	SampleCh <-chan *models.Sample
}

// NewSensorsController builds the simulated IMU for the configured engine
// settings.
func NewSensorsController(cfg *utils.FusionConfig) *SensorsController {
	settings := cfg.Settings()
	return &SensorsController{
		imu:  ingest.NewIMUSimulator(cfg.Simulation, settings),
		rate: settings.SampleRate,
	}
}

// Start streams samples in real time until ctx is done.
func (sc *SensorsController) Start(ctx context.Context) {
	sc.SampleCh = sc.imu.Out
	sc.imu.Start(ctx)
	utils.L().Info("sensors controller: real-time imu stream launched")
}

// StartBatch emits exactly n samples as fast as the consumer takes them,
// then closes SampleCh.
func (sc *SensorsController) StartBatch(ctx context.Context, n int) {
	ch := make(chan *models.Sample, cap(sc.imu.Out))
	sc.SampleCh = ch
	go func() {
		defer close(ch)
		for i := 0; i < n; i++ {
			s := sc.imu.Next()
			select {
			case ch <- &s:
			case <-ctx.Done():
				return
			}
		}
	}()
	utils.L().Info("sensors controller: batch of %s samples (%.1fs at %dHz)",
		humanize.Comma(int64(n)), float64(n)/float64(sc.rate), sc.rate)
}

// LogStats prints the real-time source's delivery counters.
func (sc *SensorsController) LogStats() {
	p, d := sc.imu.Stats()
	utils.L().Info("  imu      produced=%s  dropped=%s", humanize.Comma(int64(p)), humanize.Comma(int64(d)))
}
