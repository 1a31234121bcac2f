package sensor

import "math"

// WheelHeading derives heading from the left and right drive encoders,
// for rigs without an IMU.
type WheelHeading struct {
	Left, Right     Rotation
	InchesPerDegree float64 // encoder degrees to ground inches
	TrackWidth      float64 // inches between wheel contact patches
}

// Rotation returns cumulative degrees, clockwise positive.
func (w *WheelHeading) Rotation() float64 {
	diff := (w.Left.Position() - w.Right.Position()) * w.InchesPerDegree
	return diff / w.TrackWidth * 180 / math.Pi
}
