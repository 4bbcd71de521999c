package fusion

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"imu-fusion/models"
)

// Pipeline drives one sample stream through offset correction, the
// fusion engine, Euler conversion and the diagnostics reporter. Batch
// replay and live use go through the same Process call.
type Pipeline struct {
	settings models.Settings
	offset   *Offset
	engine   *Engine
	reporter *Reporter
	retain   bool

	started bool
	last    float64
}

// NewPipeline builds a pipeline whose engine starts at identity. retain
// controls whether the reporter keeps every output.
func NewPipeline(settings models.Settings, retain bool) (*Pipeline, error) {
	return NewPipelineFrom(settings, quat.Number{Real: 1}, retain)
}

// NewPipelineFrom builds a pipeline whose engine starts at initial.
func NewPipelineFrom(settings models.Settings, initial quat.Number, retain bool) (*Pipeline, error) {
	engine, err := NewEngineFrom(settings, initial)
	if err != nil {
		return nil, err
	}
	offset, err := NewOffset(settings.SampleRate)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		settings: settings,
		offset:   offset,
		engine:   engine,
		reporter: NewReporter(retain),
		retain:   retain,
	}, nil
}

// Reset replaces the whole chain with one built from settings, starting
// at identity with an empty history. On error the pipeline is unchanged.
func (p *Pipeline) Reset(settings models.Settings) error {
	next, err := NewPipeline(settings, p.retain)
	if err != nil {
		return err
	}
	*p = *next
	return nil
}

// Process handles one sample. The delta time is the gap to the previous
// sample's timestamp; the first sample uses the nominal sample period.
// A rejected sample changes nothing.
func (p *Pipeline) Process(s models.Sample) (models.Output, error) {
	if err := s.Validate(); err != nil {
		return models.Output{}, err
	}

	dt := 1 / float64(p.settings.SampleRate)
	if p.started {
		dt = s.Timestamp - p.last
		if !(dt > 0) || math.IsInf(dt, 1) {
			return models.Output{}, &models.InputError{
				Field:  "timestamp",
				Reason: fmt.Sprintf("%v does not follow %v", s.Timestamp, p.last),
			}
		}
	}

	// Input is fully validated above, so the engine cannot refuse it after
	// the offset corrector has advanced.
	gyro := p.offset.Update(s.Gyroscope)
	if err := p.engine.Update(gyro, s.Accelerometer, s.Magnetometer, dt); err != nil {
		return models.Output{}, err
	}
	p.started = true
	p.last = s.Timestamp

	q := p.engine.Quaternion()
	out := models.Output{
		Index:      p.engine.Samples() - 1,
		Timestamp:  s.Timestamp,
		Quaternion: q,
		Euler:      ToEuler(q),
		State:      p.engine.InternalState(),
		Flags:      p.engine.Flags(),
	}
	p.reporter.Record(out)
	return out, nil
}

// Run processes samples in order and returns one output per sample. It
// stops at the first invalid sample or when ctx is done.
func (p *Pipeline) Run(ctx context.Context, samples []models.Sample) ([]models.Output, error) {
	outs := make([]models.Output, 0, len(samples))
	for i := range samples {
		if err := ctx.Err(); err != nil {
			return outs, err
		}
		out, err := p.Process(samples[i])
		if err != nil {
			return outs, fmt.Errorf("sample %d: %w", i, err)
		}
		outs = append(outs, out)
	}
	return outs, nil
}

// Settings returns the settings the pipeline was built or last reset with.
func (p *Pipeline) Settings() models.Settings { return p.settings }

// Quaternion returns the engine's current orientation.
func (p *Pipeline) Quaternion() quat.Number { return p.engine.Quaternion() }

// Bias returns the gyroscope offset estimate in deg/s.
func (p *Pipeline) Bias() r3.Vector { return p.offset.Bias() }

// Summary returns the diagnostics aggregated so far.
func (p *Pipeline) Summary() models.Summary { return p.reporter.Summary() }

// Records returns the retained outputs (nil unless built with retain).
func (p *Pipeline) Records() []models.Output { return p.reporter.Records() }
