package fusion

import (
	"math"

	"gonum.org/v1/gonum/num/quat"

	"imu-fusion/models"
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi

	// |sin(pitch)| at or above this is treated as gimbal lock
	gimbalLock = 1 - 1e-12
)

// ToEuler converts an orientation quaternion to ZYX Euler angles in
// degrees: yaw about Z, then pitch about the new Y, then roll about the
// new X. The output ranges are roll (-180,180], pitch [-90,90] and
// yaw (-180,180].
//
// At pitch = ±90° roll and yaw are coupled; only their combination is
// recoverable there, so roll is reported as 0 and yaw carries the whole
// rotation about the vertical.
func ToEuler(q quat.Number) models.Euler {
	if n := quat.Abs(q); n > 0 && n != 1 {
		q = quat.Scale(1/n, q)
	}
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	sinPitch := clamp(2*(w*y-z*x), -1, 1)
	if math.Abs(sinPitch) >= gimbalLock {
		sign := math.Copysign(1, sinPitch)
		return models.Euler{
			Roll:  0,
			Pitch: sign * 90,
			Yaw:   wrapDegrees(-sign * 2 * math.Atan2(x, w) * radToDeg),
		}
	}

	halfMinusYY := 0.5 - y*y
	roll := math.Atan2(w*x+y*z, halfMinusYY-x*x)
	pitch := math.Asin(sinPitch)
	yaw := math.Atan2(w*z+x*y, halfMinusYY-z*z)

	return models.Euler{
		Roll:  roll * radToDeg,
		Pitch: pitch * radToDeg,
		Yaw:   yaw * radToDeg,
	}
}

// FromEuler builds the unit quaternion for ZYX Euler angles in degrees.
func FromEuler(e models.Euler) quat.Number {
	hr := 0.5 * e.Roll * degToRad
	hp := 0.5 * e.Pitch * degToRad
	hy := 0.5 * e.Yaw * degToRad

	cr, sr := math.Cos(hr), math.Sin(hr)
	cp, sp := math.Cos(hp), math.Sin(hp)
	cy, sy := math.Cos(hy), math.Sin(hy)

	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

// wrapDegrees maps an angle into (-180, 180].
func wrapDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	switch {
	case a > 180:
		a -= 360
	case a <= -180:
		a += 360
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
