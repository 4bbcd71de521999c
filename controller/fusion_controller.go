package controller

import (
	"context"
	"sync"
	"sync/atomic"

	"imu-fusion/models"
	"imu-fusion/services/fusion"
	"imu-fusion/utils"
)

// FusionController runs every sample through one fusion pipeline, in
// arrival order, on a single goroutine. Each processed sample leaves on
// Out paired with its output. Sends block: the consumer must drain Out
// until it is closed, and in exchange sees every output exactly once.
type FusionController struct {
	mu       sync.Mutex
	pipeline *fusion.Pipeline
	metrics  *Metrics

	Out chan *models.Record

	processed uint64
	rejected  uint64
}

// NewFusionController wraps p. metrics may be nil.
func NewFusionController(p *fusion.Pipeline, metrics *Metrics) *FusionController {
	return &FusionController{
		pipeline: p,
		metrics:  metrics,
		Out:      make(chan *models.Record, 256),
	}
}

// Start consumes in until it is closed or ctx is done, then closes Out.
func (fc *FusionController) Start(ctx context.Context, in <-chan *models.Sample) {
	go fc.run(ctx, in)
	s := fc.pipeline.Settings()
	utils.L().Info("fusion controller started (rate=%dHz, convention=%s, gain=%.3f, recovery_period=%d)",
		s.SampleRate, s.Convention, s.Gain, s.RecoveryTriggerPeriod)
}

func (fc *FusionController) run(ctx context.Context, in <-chan *models.Sample) {
	defer close(fc.Out)

	initialising := true
	for {
		select {
		case <-ctx.Done():
			utils.L().Info("fusion controller stopped")
			return
		case s, ok := <-in:
			if !ok {
				utils.L().Info("fusion controller: input closed")
				return
			}
			rec, ok := fc.process(s)
			if !ok {
				continue
			}
			if initialising && !rec.Output.Flags.Initialising {
				initialising = false
				utils.L().Info("fusion: initialisation complete at sample %d (t=%.3fs)", rec.Output.Index, rec.Output.Timestamp)
			}
			fc.logRecoveries(&rec.Output)

			fc.Out <- rec
		}
	}
}

func (fc *FusionController) process(s *models.Sample) (*models.Record, bool) {
	fc.mu.Lock()
	out, err := fc.pipeline.Process(*s)
	bias := fc.pipeline.Bias()
	fc.mu.Unlock()

	if err != nil {
		atomic.AddUint64(&fc.rejected, 1)
		if fc.metrics != nil {
			fc.metrics.Rejected.Inc()
		}
		utils.L().Warn("fusion: dropping sample t=%v: %v", s.Timestamp, err)
		return nil, false
	}

	atomic.AddUint64(&fc.processed, 1)
	if fc.metrics != nil {
		fc.metrics.Observe(&out, bias)
	}
	return &models.Record{Sample: *s, Output: out}, true
}

func (fc *FusionController) logRecoveries(o *models.Output) {
	if o.Flags.AccelerationRecovery {
		utils.L().Info("fusion: acceleration recovery at t=%.3fs (trigger=%d)", o.Timestamp, o.State.AccelerationRecoveryTrigger)
	}
	if o.Flags.MagneticRecovery {
		utils.L().Info("fusion: magnetic recovery at t=%.3fs (trigger=%d)", o.Timestamp, o.State.MagneticRecoveryTrigger)
	}
	if o.Flags.AngularRateRecovery {
		utils.L().Debug("fusion: gyroscope over range at t=%.3fs", o.Timestamp)
	}
}

// Stats returns how many samples were processed and refused.
func (fc *FusionController) Stats() (processed, rejected uint64) {
	return atomic.LoadUint64(&fc.processed), atomic.LoadUint64(&fc.rejected)
}

// Orientation returns the latest Euler angles.
func (fc *FusionController) Orientation() models.Euler {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fusion.ToEuler(fc.pipeline.Quaternion())
}
