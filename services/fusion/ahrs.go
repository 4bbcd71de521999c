package fusion

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"imu-fusion/models"
)

const (
	InitialGain          = 10.0 // gain at the first sample of the initialisation window
	InitialisationPeriod = 3    // s

	minNorm2 = 1e-24
)

// Engine estimates orientation from gyroscope, accelerometer and
// magnetometer samples.
//
// The gyroscope is integrated into a quaternion that rotates the sensor
// frame into the earth frame. Drift is pulled back by feeding the cross
// product between measured and predicted reference directions (gravity
// and magnetic west) into the angular rate, weighted by the gain. Each
// reference channel rejects readings that disagree with the prediction by
// more than its threshold, and is forced back in after more than
// RecoveryTriggerPeriod consecutive rejections.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	settings    models.Settings
	initSamples int

	q       quat.Number
	samples int
	accel   channel
	mag     channel
	state   models.InternalState
	flags   models.Flags
}

// NewEngine returns an engine starting at the identity orientation.
func NewEngine(settings models.Settings) (*Engine, error) {
	return NewEngineFrom(settings, quat.Number{Real: 1})
}

// NewEngineFrom returns an engine starting at initial, which is normalised.
func NewEngineFrom(settings models.Settings, initial quat.Number) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	n := quat.Abs(initial)
	if !(n > 0) || math.IsInf(n, 0) {
		return nil, &models.ConfigError{Field: "initial_quaternion", Reason: fmt.Sprintf("cannot normalise %v", initial)}
	}

	e := &Engine{
		settings: settings,
		q:        quat.Scale(1/n, initial),
	}
	if settings.Gain > 0 && settings.Gain < InitialGain {
		e.initSamples = InitialisationPeriod * settings.SampleRate
	}
	e.flags.Initialising = e.initSamples > 0
	return e, nil
}

// Update advances the orientation by one sample. gyro is in deg/s,
// accel in g, mag in any unit, deltaTime in seconds. A zero accel or mag
// vector means "not available" for that sample.
//
// Invalid input returns an *models.InputError and leaves the engine
// untouched.
func (e *Engine) Update(gyro, accel, mag r3.Vector, deltaTime float64) error {
	if err := validateInput(gyro, accel, mag, deltaTime); err != nil {
		return err
	}

	n := e.samples + 1
	initialising := n <= e.initSamples
	gain := e.settings.Gain
	if initialising {
		gain = InitialGain - (InitialGain-e.settings.Gain)*float64(n-1)/float64(e.initSamples)
	}
	rejecting := !initialising && e.settings.Gain > 0 && e.settings.RecoveryTriggerPeriod > 0
	period := e.settings.RecoveryTriggerPeriod

	up := RotateInto(e.q, e.settings.Convention.Up())

	// Gravity
	accelCh := e.accel
	accelRef := gravityReference(accel, up)
	accelIgnored, accelRecovery, accelTrigger := accelCh.step(accelRef,
		rejecting && e.settings.AccelerationRejection > 0, e.settings.AccelerationRejection, period)

	// Magnetic west
	magCh := e.mag
	magRef := magneticReference(mag, up, RotateInto(e.q, e.settings.Convention.West()))
	magIgnored, magRecovery, magTrigger := magCh.step(magRef,
		rejecting && e.settings.MagneticRejection > 0, e.settings.MagneticRejection, period)

	var correction r3.Vector
	if !accelIgnored {
		correction = correction.Add(accelRef.feedback)
	}
	if !magIgnored {
		correction = correction.Add(magRef.feedback)
	}

	omega := gyro.Mul(degToRad).Add(correction.Mul(gain))
	h := omega.Mul(0.5 * deltaTime)
	q := quat.Add(e.q, quat.Mul(e.q, quat.Number{Imag: h.X, Jmag: h.Y, Kmag: h.Z}))
	q = quat.Scale(1/quat.Abs(q), q)

	e.q = q
	e.samples = n
	e.accel = accelCh
	e.mag = magCh
	e.state = models.InternalState{
		AccelerationError:           accelRef.errorDeg,
		AccelerometerIgnored:        accelIgnored,
		AccelerationRecoveryTrigger: accelTrigger,
		MagneticError:               magRef.errorDeg,
		MagnetometerIgnored:         magIgnored,
		MagneticRecoveryTrigger:     magTrigger,
	}
	e.flags = models.Flags{
		Initialising:         initialising,
		AngularRateRecovery:  maxAbs(gyro) > e.settings.GyroscopeRange,
		AccelerationRecovery: accelRecovery,
		MagneticRecovery:     magRecovery,
	}
	return nil
}

// Quaternion returns the current orientation (sensor to earth frame).
func (e *Engine) Quaternion() quat.Number { return e.q }

// InternalState returns the state computed by the last Update.
func (e *Engine) InternalState() models.InternalState { return e.state }

// Flags returns the flags computed by the last Update.
func (e *Engine) Flags() models.Flags { return e.flags }

// Settings returns the validated settings the engine was built with.
func (e *Engine) Settings() models.Settings { return e.settings }

// Samples returns the number of successful updates.
func (e *Engine) Samples() int { return e.samples }

// ─── reference channels ─────────────────────────────────────────────────

// reference is one channel's measurement compared with its prediction.
type reference struct {
	available bool
	errorDeg  float64
	feedback  r3.Vector
}

func gravityReference(accel, predictedUp r3.Vector) reference {
	if accel.Norm2() < minNorm2 {
		return reference{}
	}
	return compare(accel.Normalize(), predictedUp)
}

// magneticReference compares west (up × field) rather than the raw field
// so that magnetic inclination and tilt do not enter the heading error.
func magneticReference(mag, predictedUp, predictedWest r3.Vector) reference {
	if mag.Norm2() < minNorm2 {
		return reference{}
	}
	west := predictedUp.Cross(mag.Normalize())
	if west.Norm2() < minNorm2 {
		return reference{}
	}
	return compare(west.Normalize(), predictedWest)
}

func compare(measured, predicted r3.Vector) reference {
	return reference{
		available: true,
		errorDeg:  measured.Angle(predicted).Degrees(),
		feedback:  feedback(measured, predicted),
	}
}

// feedback is the rotation axis that turns predicted toward measured,
// scaled by the sine of the error. Beyond 90° it saturates at unit length.
func feedback(measured, predicted r3.Vector) r3.Vector {
	c := measured.Cross(predicted)
	if measured.Dot(predicted) < 0 {
		if c.Norm2() < minNorm2 {
			return measured.Ortho()
		}
		return c.Normalize()
	}
	return c
}

// channel is the rejection/recovery state machine of one reference:
//
//	Accepted ⇄ Rejected → ForcedRecovery → Accepted
//
// trigger counts consecutive rejections. When it exceeds the recovery
// period the sample reports recovery, the counter resets and the next
// available sample is accepted unconditionally.
type channel struct {
	trigger   int
	forceNext bool
}

// step returns whether the channel is ignored on this sample, whether it
// entered recovery, and the trigger value to report.
func (c *channel) step(ref reference, rejecting bool, threshold float64, period int) (ignored, recovery bool, trigger int) {
	if !ref.available {
		return true, false, c.trigger
	}
	if c.forceNext {
		c.forceNext = false
		c.trigger = 0
		return false, false, 0
	}
	if !rejecting || ref.errorDeg <= threshold {
		c.trigger = 0
		return false, false, 0
	}

	c.trigger++
	if c.trigger > period {
		trigger = c.trigger
		c.trigger = 0
		c.forceNext = true
		return true, true, trigger
	}
	return true, false, c.trigger
}

// RotateInto expresses the earth-frame vector v in the sensor frame of
// orientation q.
func RotateInto(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Mul(quat.Mul(quat.Conj(q), quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), q)
	return r3.Vector{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

func validateInput(gyro, accel, mag r3.Vector, deltaTime float64) error {
	switch {
	case !models.FiniteVector(gyro):
		return &models.InputError{Field: "gyroscope", Reason: "not finite"}
	case !models.FiniteVector(accel):
		return &models.InputError{Field: "accelerometer", Reason: "not finite"}
	case !models.FiniteVector(mag):
		return &models.InputError{Field: "magnetometer", Reason: "not finite"}
	case !(deltaTime > 0) || math.IsInf(deltaTime, 1):
		return &models.InputError{Field: "delta_time", Reason: fmt.Sprintf("must be positive and finite, got %v", deltaTime)}
	}
	return nil
}
