package telemetry

import (
	"time"

	"github.com/cjeanneret/godrive/internal/logic/geometry"
	"github.com/cjeanneret/godrive/internal/logic/motion"
	"github.com/cjeanneret/godrive/internal/logic/odom"
)

// Source is the chassis state a Recorder reads.
type Source interface {
	Pose() odom.Pose
	ForwardTrackerPosition() float64
	Target() motion.Target
	DistanceTraveled() float64
	IsInMotion() bool
}

// Sample is one snapshot of the chassis.
type Sample struct {
	Elapsed  time.Duration `json:"elapsed"`
	Pose     odom.Pose     `json:"pose"`
	Forward  float64       `json:"forward"`
	Target   motion.Target `json:"target"`
	Traveled float64       `json:"traveled"`
	Moving   bool          `json:"moving"`
}

// Take reads one sample from src.
func Take(src Source, elapsed time.Duration) Sample {
	return Sample{
		Elapsed:  elapsed,
		Pose:     src.Pose(),
		Forward:  src.ForwardTrackerPosition(),
		Target:   src.Target(),
		Traveled: src.DistanceTraveled(),
		Moving:   src.IsInMotion(),
	}
}

// Tracked returns the value the current motion controls and its setpoint:
// forward travel for distance drives, heading for turns and swings, and
// distance to the target for point, pose and path drives.
func (s Sample) Tracked() (actual, setpoint float64) {
	t := s.Target
	switch t.Kind {
	case motion.KindDriveDistance:
		return s.Forward, t.Origin + t.Distance
	case motion.KindTurnToAngle, motion.KindLeftSwing, motion.KindRightSwing:
		return s.Pose.Heading, t.Angle
	case motion.KindTurnToPoint, motion.KindLeftSwingToPoint, motion.KindRightSwingToPoint:
		aim := geometry.Bearing(s.Pose.Point(), geometry.Point{X: t.X, Y: t.Y}) + t.AngleOffset
		return s.Pose.Heading, geometry.Reduce360(aim)
	case motion.KindDriveToPoint, motion.KindDriveToPose, motion.KindFollowPath:
		return geometry.Distance(s.Pose.Point(), geometry.Point{X: t.X, Y: t.Y}), 0
	}
	return s.Pose.Heading, s.Pose.Heading
}

// Fields flattens the sample into named values, in CSV column order.
func (s Sample) Fields() []Field {
	actual, setpoint := s.Tracked()
	moving := int64(0)
	if s.Moving {
		moving = 1
	}
	return []Field{
		{"t_ms", Int(s.Elapsed.Milliseconds())},
		{"kind", String(string(s.Target.Kind))},
		{"x", Float(s.Pose.X)},
		{"y", Float(s.Pose.Y)},
		{"heading", Float(s.Pose.Heading)},
		{"forward", Float(s.Forward)},
		{"actual", Float(actual)},
		{"setpoint", Float(setpoint)},
		{"traveled", Float(s.Traveled)},
		{"moving", Int(moving)},
	}
}

// Header returns the CSV column names.
func Header() []string {
	fields := Sample{}.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// Row formats the sample as CSV cells.
func (s Sample) Row() []string {
	fields := s.Fields()
	row := make([]string, len(fields))
	for i, f := range fields {
		row[i] = f.Value.Format()
	}
	return row
}
