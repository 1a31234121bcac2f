// Package sensor defines the readings the motion stack consumes and
// GPIO-backed implementations of them.
package sensor

// Heading reports robot rotation in degrees, clockwise positive.
// The value is cumulative: it keeps counting past 360 so that deltas
// across the wrap are exact.
type Heading interface {
	Rotation() float64
}

// Rotation is a tracking wheel encoder. Position is cumulative sensor
// degrees; the odometry layer converts it to inches.
type Rotation interface {
	Position() float64
	ResetPosition()
}
