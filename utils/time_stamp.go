package utils

import (
	"fmt"
	"time"
)

// SampleTime returns the timestamp, in seconds, of sample index i in a
// stream sampled at rate Hz and starting at t0.
func SampleTime(t0 float64, i, rate int) float64 {
	return t0 + float64(i)/float64(rate)
}

// SamplePeriod is the nominal interval between samples at rate Hz.
func SamplePeriod(rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Second / time.Duration(rate)
}

// SessionName returns a unique session directory name:
//
//	<prefix>_YYYYMMDD_HHMMSS
func SessionName(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, time.Now().Format("20060102_150405"))
}
