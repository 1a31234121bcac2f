package geometry

import "math"

// MaxVoltage is the actuator ceiling per drivetrain side.
const MaxVoltage = 12.0

// Clamp limits v to [min, max].
func Clamp(v, min, max float64) float64 {
	if v > max {
		return max
	}
	if v < min {
		return min
	}
	return v
}

// ClampMinVoltage raises a nonzero output to at least floor in magnitude.
// Zero stays zero.
func ClampMinVoltage(v, floor float64) float64 {
	if v < 0 && v > -floor {
		return -floor
	}
	if v > 0 && v < floor {
		return floor
	}
	return v
}

// ScaleVoltages combines drive and heading outputs into left/right sides,
// scaling both down together when either side would exceed ceiling.
func ScaleVoltages(drive, heading, ceiling float64) (left, right float64) {
	ratio := math.Max(math.Abs(drive+heading), math.Abs(drive-heading)) / ceiling
	if ratio > 1 {
		drive /= ratio
		heading /= ratio
	}
	return drive + heading, drive - heading
}
