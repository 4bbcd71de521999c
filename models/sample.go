package models

import (
	"math"

	"github.com/golang/geo/r3"
)

// Sample holds one timestamped IMU reading.
type Sample struct {
	Timestamp     float64   `json:"timestamp"`     // s, strictly increasing within a stream
	Gyroscope     r3.Vector `json:"gyroscope"`     // deg/s
	Accelerometer r3.Vector `json:"accelerometer"` // g
	Magnetometer  r3.Vector `json:"magnetometer"`  // any consistent unit
}

// Validate rejects non-finite components.
func (s *Sample) Validate() error {
	if !finite(s.Timestamp) {
		return &InputError{Field: "timestamp", Reason: "not finite"}
	}
	if !FiniteVector(s.Gyroscope) {
		return &InputError{Field: "gyroscope", Reason: "not finite"}
	}
	if !FiniteVector(s.Accelerometer) {
		return &InputError{Field: "accelerometer", Reason: "not finite"}
	}
	if !FiniteVector(s.Magnetometer) {
		return &InputError{Field: "magnetometer", Reason: "not finite"}
	}
	return nil
}

func (Sample) CSVHeader() []string {
	return []string{
		"timestamp",
		"gyro_x", "gyro_y", "gyro_z",
		"accel_x", "accel_y", "accel_z",
		"mag_x", "mag_y", "mag_z",
	}
}

func (s *Sample) CSVRow() []string {
	return []string{
		ftoa(s.Timestamp, 6),
		ftoa(s.Gyroscope.X, 6), ftoa(s.Gyroscope.Y, 6), ftoa(s.Gyroscope.Z, 6),
		ftoa(s.Accelerometer.X, 6), ftoa(s.Accelerometer.Y, 6), ftoa(s.Accelerometer.Z, 6),
		ftoa(s.Magnetometer.X, 4), ftoa(s.Magnetometer.Y, 4), ftoa(s.Magnetometer.Z, 4),
	}
}

// FiniteVector reports whether no component is NaN or ±Inf.
func FiniteVector(v r3.Vector) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
