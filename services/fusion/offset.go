package fusion

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"imu-fusion/models"
)

const (
	OffsetThreshold       = 3.0  // deg/s; any axis above this is "moving"
	OffsetTimeout         = 5    // s of stillness before the bias starts adapting
	OffsetCutoffFrequency = 0.02 // Hz, bias low-pass cutoff
)

// Offset removes a slowly drifting gyroscope bias. While the (corrected)
// gyroscope stays below OffsetThreshold for longer than OffsetTimeout, the
// bias estimate follows the readings through a single-pole low-pass filter.
type Offset struct {
	coefficient float64
	timeout     int
	timer       int
	bias        r3.Vector
}

// NewOffset creates a corrector for a stream sampled at sampleRate Hz.
func NewOffset(sampleRate int) (*Offset, error) {
	if sampleRate <= 0 {
		return nil, &models.ConfigError{Field: "sample_rate", Reason: fmt.Sprintf("must be positive, got %d", sampleRate)}
	}
	return &Offset{
		coefficient: 2 * math.Pi * OffsetCutoffFrequency / float64(sampleRate),
		timeout:     OffsetTimeout * sampleRate,
	}, nil
}

// Update returns gyro minus the current bias estimate and advances the
// estimator.
func (o *Offset) Update(gyro r3.Vector) r3.Vector {
	corrected := gyro.Sub(o.bias)

	if maxAbs(corrected) > OffsetThreshold {
		o.timer = 0
		return corrected
	}

	if o.timer < o.timeout {
		o.timer++
		return corrected
	}

	o.bias = o.bias.Add(corrected.Mul(o.coefficient))
	return corrected
}

// Bias returns the current bias estimate in deg/s.
func (o *Offset) Bias() r3.Vector {
	return o.bias
}

// Steady reports whether the bias estimate is currently adapting.
func (o *Offset) Steady() bool {
	return o.timer >= o.timeout
}

func maxAbs(v r3.Vector) float64 {
	a := v.Abs()
	return math.Max(a.X, math.Max(a.Y, a.Z))
}
