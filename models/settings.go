package models

import (
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r3"
)

// Convention names the earth axes the orientation is expressed in.
type Convention int

const (
	NWU Convention = iota // North-West-Up
	ENU                   // East-North-Up
	NED                   // North-East-Down
)

var conventionNames = map[Convention]string{
	NWU: "nwu",
	ENU: "enu",
	NED: "ned",
}

func (c Convention) String() string {
	if n, ok := conventionNames[c]; ok {
		return n
	}
	return "unknown"
}

// Valid reports whether c is one of the supported conventions.
func (c Convention) Valid() bool {
	_, ok := conventionNames[c]
	return ok
}

// ParseConvention accepts "nwu", "enu" or "ned" in any case.
func ParseConvention(s string) (Convention, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for c, n := range conventionNames {
		if n == want {
			return c, nil
		}
	}
	return 0, &ConfigError{Field: "convention", Reason: fmt.Sprintf("unknown convention %q", s)}
}

// MarshalText implements encoding.TextMarshaler.
func (c Convention) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, &ConfigError{Field: "convention", Reason: fmt.Sprintf("unknown convention %d", int(c))}
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Convention) UnmarshalText(b []byte) error {
	v, err := ParseConvention(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Up is the unit vector pointing away from the earth in this convention.
// An accelerometer at rest measures it.
func (c Convention) Up() r3.Vector {
	if c == NED {
		return r3.Vector{X: 0, Y: 0, Z: -1}
	}
	return r3.Vector{X: 0, Y: 0, Z: 1}
}

// West is the unit vector pointing magnetic west in this convention.
// up × north is west for every convention.
func (c Convention) West() r3.Vector {
	switch c {
	case ENU:
		return r3.Vector{X: -1, Y: 0, Z: 0}
	case NED:
		return r3.Vector{X: 0, Y: -1, Z: 0}
	default:
		return r3.Vector{X: 0, Y: 1, Z: 0}
	}
}

// Settings is the immutable configuration of one fusion engine.
type Settings struct {
	SampleRate            int        // Hz
	Convention            Convention //
	Gain                  float64    // 0 = gyroscope integration only
	GyroscopeRange        float64    // deg/s, saturation threshold
	AccelerationRejection float64    // degrees, 0 disables rejection
	MagneticRejection     float64    // degrees, 0 disables rejection
	RecoveryTriggerPeriod int        // samples
}

// Validate checks every field against its domain.
func (s Settings) Validate() error {
	switch {
	case s.SampleRate <= 0:
		return &ConfigError{Field: "sample_rate", Reason: fmt.Sprintf("must be positive, got %d", s.SampleRate)}
	case !s.Convention.Valid():
		return &ConfigError{Field: "convention", Reason: fmt.Sprintf("unknown convention %d", int(s.Convention))}
	case !nonNegative(s.Gain):
		return &ConfigError{Field: "gain", Reason: fmt.Sprintf("must be a non-negative number, got %v", s.Gain)}
	case !(s.GyroscopeRange > 0) || math.IsInf(s.GyroscopeRange, 0):
		return &ConfigError{Field: "gyroscope_range", Reason: fmt.Sprintf("must be a positive number, got %v", s.GyroscopeRange)}
	case !nonNegative(s.AccelerationRejection):
		return &ConfigError{Field: "acceleration_rejection", Reason: fmt.Sprintf("must be a non-negative number, got %v", s.AccelerationRejection)}
	case !nonNegative(s.MagneticRejection):
		return &ConfigError{Field: "magnetic_rejection", Reason: fmt.Sprintf("must be a non-negative number, got %v", s.MagneticRejection)}
	case s.RecoveryTriggerPeriod < 0:
		return &ConfigError{Field: "recovery_trigger_period", Reason: fmt.Sprintf("must not be negative, got %d", s.RecoveryTriggerPeriod)}
	}
	return nil
}

// nonNegative is false for NaN, ±Inf and negative values.
func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}
