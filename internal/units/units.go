// Package units provides shared angle and acceleration conversions used by
// the sensor and kinematics layers.
package units

import "math"

// StandardGravity is g0 in m/s^2, used to convert accelerometer readings.
const StandardGravity = 9.80665

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// WrapDeg180 normalizes an angle in degrees into the range [-180, 180).
func WrapDeg180(deg float64) float64 {
	wrapped := math.Mod(deg+180.0, 360.0)
	if wrapped < 0 {
		wrapped += 360.0
	}
	return wrapped - 180.0
}

// GToMetersPerSecond2 converts an acceleration in g to m/s^2.
func GToMetersPerSecond2(g float64) float64 {
	return g * StandardGravity
}
