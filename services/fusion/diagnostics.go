package fusion

import (
	"math"

	"imu-fusion/models"
)

// Reporter is the read-only projection of a run's per-sample outputs.
// It only copies and aggregates values the engine already computed.
// With retain set it also keeps every output in arrival order.
type Reporter struct {
	retain  bool
	records []models.Output

	summary  models.Summary
	accelSum float64
	magSum   float64
}

func NewReporter(retain bool) *Reporter {
	return &Reporter{retain: retain}
}

// Record appends one output.
func (r *Reporter) Record(o models.Output) {
	if r.retain {
		r.records = append(r.records, o)
	}

	s := &r.summary
	s.Samples++
	if o.Flags.Initialising {
		s.InitialisingSamples++
	}
	if o.Flags.AngularRateRecovery {
		s.AngularRateRecoveries++
	}
	if o.State.AccelerometerIgnored {
		s.AccelerometerIgnored++
	}
	if o.State.MagnetometerIgnored {
		s.MagnetometerIgnored++
	}
	if o.Flags.AccelerationRecovery {
		s.AccelerationRecoveries++
	}
	if o.Flags.MagneticRecovery {
		s.MagneticRecoveries++
	}
	s.MaxAccelerationError = math.Max(s.MaxAccelerationError, o.State.AccelerationError)
	s.MaxMagneticError = math.Max(s.MaxMagneticError, o.State.MagneticError)
	r.accelSum += o.State.AccelerationError
	r.magSum += o.State.MagneticError
	s.MeanAccelerationError = r.accelSum / float64(s.Samples)
	s.MeanMagneticError = r.magSum / float64(s.Samples)
	s.Last = o.Euler
}

// Records returns a copy of the retained outputs, or nil when the
// reporter does not retain.
func (r *Reporter) Records() []models.Output {
	if !r.retain {
		return nil
	}
	out := make([]models.Output, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of outputs recorded, retained or not.
func (r *Reporter) Len() int { return r.summary.Samples }

// Summary returns the aggregates over every recorded output. Recovery
// counts are the number of samples that raised the matching flag.
func (r *Reporter) Summary() models.Summary { return r.summary }
