package models

import (
	"gonum.org/v1/gonum/num/quat"
)

// InternalState is the engine's per-sample view of its two reference
// channels. Errors are angular deviations in degrees.
type InternalState struct {
	AccelerationError           float64 `json:"acceleration_error"`
	AccelerometerIgnored        bool    `json:"accelerometer_ignored"`
	AccelerationRecoveryTrigger int     `json:"acceleration_recovery_trigger"`
	MagneticError               float64 `json:"magnetic_error"`
	MagnetometerIgnored         bool    `json:"magnetometer_ignored"`
	MagneticRecoveryTrigger     int     `json:"magnetic_recovery_trigger"`
}

// Flags summarise the engine's mode for the current sample.
type Flags struct {
	Initialising         bool `json:"initialising"`
	AngularRateRecovery  bool `json:"angular_rate_recovery"`
	AccelerationRecovery bool `json:"acceleration_recovery"`
	MagneticRecovery     bool `json:"magnetic_recovery"`
}

// Euler holds ZYX Euler angles in degrees.
type Euler struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Output is everything produced for one processed sample.
type Output struct {
	Index      int           `json:"index"` // 0-based arrival order
	Timestamp  float64       `json:"timestamp"`
	Quaternion quat.Number   `json:"quaternion"`
	Euler      Euler         `json:"euler"`
	State      InternalState `json:"state"`
	Flags      Flags         `json:"flags"`
}

// Record pairs an input sample with the output it produced. It is the
// unit the recording stage persists.
type Record struct {
	Sample Sample
	Output Output
}

// EulerRecord returns the row written to the Euler angle export.
func (o *Output) EulerRecord() *EulerRecord {
	return &EulerRecord{Timestamp: o.Timestamp, Euler: o.Euler}
}

func (Output) CSVHeader() []string {
	return []string{
		"index", "timestamp",
		"q_w", "q_x", "q_y", "q_z",
		"roll", "pitch", "yaw",
		"acceleration_error", "accelerometer_ignored", "acceleration_recovery_trigger",
		"magnetic_error", "magnetometer_ignored", "magnetic_recovery_trigger",
		"initialising", "angular_rate_recovery", "acceleration_recovery", "magnetic_recovery",
	}
}

func (o *Output) CSVRow() []string {
	q := o.Quaternion
	return []string{
		itoa(o.Index), ftoa(o.Timestamp, 6),
		ftoa(q.Real, 9), ftoa(q.Imag, 9), ftoa(q.Jmag, 9), ftoa(q.Kmag, 9),
		ftoa(o.Euler.Roll, 6), ftoa(o.Euler.Pitch, 6), ftoa(o.Euler.Yaw, 6),
		ftoa(o.State.AccelerationError, 4), btoa(o.State.AccelerometerIgnored), itoa(o.State.AccelerationRecoveryTrigger),
		ftoa(o.State.MagneticError, 4), btoa(o.State.MagnetometerIgnored), itoa(o.State.MagneticRecoveryTrigger),
		btoa(o.Flags.Initialising), btoa(o.Flags.AngularRateRecovery),
		btoa(o.Flags.AccelerationRecovery), btoa(o.Flags.MagneticRecovery),
	}
}

// EulerRecord is one row of the (timestamp, roll, pitch, yaw) export.
type EulerRecord struct {
	Timestamp float64
	Euler
}

func (EulerRecord) CSVHeader() []string {
	return []string{"Timestamp", "Roll", "Pitch", "Yaw"}
}

func (r *EulerRecord) CSVRow() []string {
	return []string{
		ftoa(r.Timestamp, 6),
		ftoa(r.Roll, 6), ftoa(r.Pitch, 6), ftoa(r.Yaw, 6),
	}
}

// Summary aggregates a run's diagnostics.
type Summary struct {
	Samples                int     `json:"samples"`
	InitialisingSamples    int     `json:"initialising_samples"`
	AngularRateRecoveries  int     `json:"angular_rate_recoveries"`
	AccelerometerIgnored   int     `json:"accelerometer_ignored"`
	MagnetometerIgnored    int     `json:"magnetometer_ignored"`
	AccelerationRecoveries int     `json:"acceleration_recoveries"`
	MagneticRecoveries     int     `json:"magnetic_recoveries"`
	MaxAccelerationError   float64 `json:"max_acceleration_error"`
	MeanAccelerationError  float64 `json:"mean_acceleration_error"`
	MaxMagneticError       float64 `json:"max_magnetic_error"`
	MeanMagneticError      float64 `json:"mean_magnetic_error"`
	Last                   Euler   `json:"last"`
}
