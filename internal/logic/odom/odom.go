// Package odom estimates the robot pose from two tracking wheels and a
// heading sensor.
package odom

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/godrive/internal/debug"
	"github.com/cjeanneret/godrive/internal/hw/sensor"
	"github.com/cjeanneret/godrive/internal/logic/geometry"
)

// Pose is a field-relative position (inches) and heading (degrees, [0,360)).
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// Point returns the position part of the pose.
func (p Pose) Point() geometry.Point {
	return geometry.Point{X: p.X, Y: p.Y}
}

// Tracker is one tracking wheel.
type Tracker struct {
	Sensor sensor.Rotation
	Wheel  *geometry.WheelCalculator
	// CenterDistance is the wheel's offset from the rotation center:
	// to the right for the forward wheel, behind for the sideways wheel.
	CenterDistance float64
}

func (t *Tracker) inches() float64 {
	if t == nil || t.Sensor == nil {
		return 0
	}
	return t.Wheel.Inches(t.Sensor.Position())
}

func (t *Tracker) center() float64 {
	if t == nil {
		return 0
	}
	return t.CenterDistance
}

// Config wires the estimator to its sensors.
type Config struct {
	Forward  Tracker
	Sideways *Tracker // nil when the robot has no sideways wheel
	Heading  sensor.Heading
	// HeadingScale is what the heading sensor reports for one real turn.
	// 0 means 360.
	HeadingScale float64
	Period       time.Duration
}

// Estimator integrates sensor deltas into a Pose. It is single-writer
// (Update) and safe for concurrent readers.
type Estimator struct {
	cfg Config

	mu       sync.RWMutex
	pose     Pose
	offset   float64 // heading = scaled rotation + offset
	prevFwd  float64
	prevSide float64
	prevRot  float64
}

// New creates an estimator at the origin facing 0°.
func New(cfg Config) (*Estimator, error) {
	if cfg.Forward.Sensor == nil || cfg.Forward.Wheel == nil {
		return nil, errors.New("odometry needs a forward tracker")
	}
	if cfg.Sideways != nil && (cfg.Sideways.Sensor == nil || cfg.Sideways.Wheel == nil) {
		return nil, errors.New("sideways tracker is missing its sensor or wheel")
	}
	if cfg.Heading == nil {
		return nil, errors.New("odometry needs a heading sensor")
	}
	if cfg.HeadingScale < 0 {
		return nil, fmt.Errorf("heading scale must be > 0, got %v", cfg.HeadingScale)
	}
	if cfg.HeadingScale == 0 {
		cfg.HeadingScale = 360
	}
	if cfg.Period <= 0 {
		cfg.Period = 10 * time.Millisecond
	}
	e := &Estimator{cfg: cfg}
	e.SetCoordinates(0, 0, 0)
	return e, nil
}

func (e *Estimator) rotation() float64 {
	return e.cfg.Heading.Rotation() * 360 / e.cfg.HeadingScale
}

// SetCoordinates resets the pose and the heading reference in one step.
// Sensors are sampled under the lock so a concurrent Update cannot put a
// stale reading back into the reference.
func (e *Estimator) SetCoordinates(x, y, heading float64) {
	e.mu.Lock()
	fwd := e.cfg.Forward.inches()
	side := e.cfg.Sideways.inches()
	rot := e.rotation()
	e.pose = Pose{X: x, Y: y, Heading: geometry.Reduce360(heading)}
	e.offset = heading - rot
	e.prevFwd, e.prevSide, e.prevRot = fwd, side, rot
	e.mu.Unlock()

	debug.Verbose("Odometry reset to (%.2f, %.2f, %.2f°)", x, y, heading)
}

// SetHeading resets only the heading reference.
func (e *Estimator) SetHeading(heading float64) {
	e.mu.Lock()
	rot := e.rotation()
	e.pose.Heading = geometry.Reduce360(heading)
	e.offset = heading - rot
	e.prevRot = rot
	e.mu.Unlock()

	debug.Verbose("Odometry heading reset to %.2f°", heading)
}

// Update reads the sensors once and advances the pose.
func (e *Estimator) Update() Pose {
	e.mu.Lock()
	defer e.mu.Unlock()
	fwd := e.cfg.Forward.inches()
	side := e.cfg.Sideways.inches()
	rot := e.rotation()

	dFwd := fwd - e.prevFwd
	dSide := side - e.prevSide
	dTheta := rot - e.prevRot
	e.prevFwd, e.prevSide, e.prevRot = fwd, side, rot

	dx, dy := Integrate(dFwd, dSide, dTheta, e.pose.Heading,
		e.cfg.Forward.center(), e.cfg.Sideways.center())
	e.pose.X += dx
	e.pose.Y += dy
	e.pose.Heading = geometry.Reduce360(rot + e.offset)
	return e.pose
}

// Run updates the pose every period until ctx is done.
func (e *Estimator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Update()
		}
	}
}

// Pose returns a consistent snapshot of the pose.
func (e *Estimator) Pose() Pose {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pose
}

// Heading returns the current heading in [0,360).
func (e *Estimator) Heading() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pose.Heading
}

// ForwardPosition returns the forward tracker travel in inches.
func (e *Estimator) ForwardPosition() float64 {
	return e.cfg.Forward.inches()
}

// Integrate converts one tick of tracker and heading deltas into a field
// displacement. Angles are in degrees; prevHeading is the heading before
// the tick. The wheel offsets correct for the arc each wheel follows
// around the rotation center.
func Integrate(dFwd, dSide, dThetaDeg, prevHeading, fwdCenter, sideCenter float64) (dx, dy float64) {
	dTheta := geometry.ToRad(dThetaDeg)
	prev := geometry.ToRad(prevHeading)

	var localX, localY float64
	if dTheta == 0 {
		localX = dSide
		localY = dFwd
	} else {
		chord := 2 * math.Sin(dTheta/2)
		localX = chord * (dSide/dTheta + sideCenter)
		localY = chord * (dFwd/dTheta + fwdCenter)
	}
	if localX == 0 && localY == 0 {
		return 0, 0
	}

	length := math.Hypot(localX, localY)
	angle := math.Atan2(localY, localX) - prev - dTheta/2
	return length * math.Cos(angle), length * math.Sin(angle)
}
