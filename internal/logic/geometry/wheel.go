package geometry

import "math"

// WheelCalculator converts between sensor rotation and travel along the
// ground for one wheel.
type WheelCalculator struct {
	inchesPerDegree float64
}

// NewWheelCalculator creates a converter for a wheel of the given diameter
// (inches). gearRatio is wheel turns per sensor turn; 0 means 1.
func NewWheelCalculator(diameter, gearRatio float64) *WheelCalculator {
	if gearRatio == 0 {
		gearRatio = 1
	}
	return &WheelCalculator{
		inchesPerDegree: math.Pi * diameter * gearRatio / 360.0,
	}
}

// Inches converts a sensor reading in degrees to inches of travel.
func (w *WheelCalculator) Inches(degrees float64) float64 {
	return degrees * w.inchesPerDegree
}

// Degrees converts inches of travel to a sensor reading in degrees.
func (w *WheelCalculator) Degrees(inches float64) float64 {
	return inches / w.inchesPerDegree
}
