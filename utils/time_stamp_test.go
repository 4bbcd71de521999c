package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSampleTime(t *testing.T) {
	assert.Equal(t, 0.0, SampleTime(0, 0, 15))
	assert.InDelta(t, 2.0, SampleTime(0, 30, 15), 1e-12)
	assert.InDelta(t, 10.5, SampleTime(10, 50, 100), 1e-12)
}

func TestSamplePeriod(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, SamplePeriod(100))
	assert.Equal(t, time.Duration(0), SamplePeriod(0))
}

func TestSessionName(t *testing.T) {
	n := SessionName("fusion")
	assert.True(t, strings.HasPrefix(n, "fusion_"))
	assert.Len(t, n, len("fusion_20060102_150405"))
}
