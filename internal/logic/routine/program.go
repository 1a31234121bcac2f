// Package routine runs scripted sequences of motions against a chassis:
// the built-in tuning routines and programs loaded from YAML.
package routine

import (
	"fmt"
	"time"

	"github.com/cjeanneret/godrive/internal/hw/motor"
	"github.com/cjeanneret/godrive/internal/logic/geometry"
	"github.com/cjeanneret/godrive/internal/logic/motion"
)

// Step operations that are not motions.
const (
	OpSetCoordinates = "set_coordinates"
	OpSetHeading     = "set_heading"
	OpWait           = "wait"
	OpWaitUntil      = "wait_until"
	OpCancel         = "cancel"
	OpStop           = "stop"
	OpSleep          = "sleep"
)

// Waypoint is one point of a follow_path step.
type Waypoint struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Step is one line of a program. Op is a motion kind (drive_distance,
// turn_to_point, ...) or one of the Op constants. Pointer fields are
// per-motion overrides; nil keeps the chassis tuning.
type Step struct {
	Op       string     `yaml:"op"`
	Distance float64    `yaml:"distance,omitempty"`
	Angle    float64    `yaml:"angle,omitempty"`
	X        float64    `yaml:"x,omitempty"`
	Y        float64    `yaml:"y,omitempty"`
	Path     []Waypoint `yaml:"path,omitempty"`
	Units    float64    `yaml:"units,omitempty"`       // wait_until
	Duration int        `yaml:"duration_ms,omitempty"` // sleep
	Brake    string     `yaml:"brake,omitempty"`       // stop

	Heading           *float64 `yaml:"heading,omitempty"`
	Direction         string   `yaml:"direction,omitempty"`
	AngleOffset       *float64 `yaml:"angle_offset,omitempty"`
	MinVoltage        *float64 `yaml:"min_voltage,omitempty"`
	MaxVoltage        *float64 `yaml:"max_voltage,omitempty"`
	HeadingMaxVoltage *float64 `yaml:"heading_max_voltage,omitempty"`
	SettleError       *float64 `yaml:"settle_error,omitempty"`
	SettleTimeMs      *int     `yaml:"settle_time_ms,omitempty"`
	TimeoutMs         *int     `yaml:"timeout_ms,omitempty"`
	Lead              *float64 `yaml:"lead,omitempty"`
	Setback           *float64 `yaml:"setback,omitempty"`
	Lookahead         *float64 `yaml:"lookahead,omitempty"`
	NoWait            bool     `yaml:"no_wait,omitempty"`
}

// Program is a named list of steps.
type Program struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

var motionOps = map[string]bool{
	string(motion.KindDriveDistance):     true,
	string(motion.KindTurnToAngle):       true,
	string(motion.KindLeftSwing):         true,
	string(motion.KindRightSwing):        true,
	string(motion.KindTurnToPoint):       true,
	string(motion.KindLeftSwingToPoint):  true,
	string(motion.KindRightSwingToPoint): true,
	string(motion.KindDriveToPoint):      true,
	string(motion.KindDriveToPose):       true,
	string(motion.KindFollowPath):        true,
}

var otherOps = map[string]bool{
	OpSetCoordinates: true, OpSetHeading: true, OpWait: true, OpWaitUntil: true,
	OpCancel: true, OpStop: true, OpSleep: true,
}

// Validate checks the step's operation and the fields it needs.
func (s Step) Validate() error {
	if !motionOps[s.Op] && !otherOps[s.Op] {
		return fmt.Errorf("unknown op %q", s.Op)
	}
	if s.Op == string(motion.KindFollowPath) && len(s.Path) == 0 {
		return fmt.Errorf("%s needs at least one waypoint", s.Op)
	}
	if s.Direction != "" {
		if _, err := geometry.ParseDirection(s.Direction); err != nil {
			return err
		}
	}
	if s.Op == OpStop {
		if _, err := motor.ParseBrakeMode(s.Brake); err != nil {
			return err
		}
	}
	if s.Duration < 0 {
		return fmt.Errorf("duration_ms must be >= 0, got %d", s.Duration)
	}
	if s.SettleTimeMs != nil && *s.SettleTimeMs < 0 {
		return fmt.Errorf("settle_time_ms must be >= 0, got %d", *s.SettleTimeMs)
	}
	if s.TimeoutMs != nil && *s.TimeoutMs < 0 {
		return fmt.Errorf("timeout_ms must be >= 0, got %d", *s.TimeoutMs)
	}
	return nil
}

// Validate checks the name and every step.
func (p Program) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("program name is empty")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("program %q has no steps", p.Name)
	}
	for i, s := range p.Steps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("program %q step %d: %w", p.Name, i+1, err)
		}
	}
	return nil
}

// Options turns the step's overrides into motion options.
func (s Step) Options() []motion.Option {
	var opts []motion.Option
	if s.Heading != nil {
		opts = append(opts, motion.WithHeading(*s.Heading))
	}
	if s.Direction != "" {
		d, _ := geometry.ParseDirection(s.Direction)
		opts = append(opts, motion.WithDirection(d))
	}
	if s.AngleOffset != nil {
		opts = append(opts, motion.WithAngleOffset(*s.AngleOffset))
	}
	if s.MinVoltage != nil {
		opts = append(opts, motion.WithMinVoltage(*s.MinVoltage))
	}
	if s.MaxVoltage != nil {
		opts = append(opts, motion.WithMaxVoltage(*s.MaxVoltage))
	}
	if s.HeadingMaxVoltage != nil {
		opts = append(opts, motion.WithHeadingMaxVoltage(*s.HeadingMaxVoltage))
	}
	if s.SettleError != nil {
		opts = append(opts, motion.WithSettleError(*s.SettleError))
	}
	if s.SettleTimeMs != nil {
		opts = append(opts, motion.WithSettleTime(time.Duration(*s.SettleTimeMs)*time.Millisecond))
	}
	if s.TimeoutMs != nil {
		opts = append(opts, motion.WithTimeout(time.Duration(*s.TimeoutMs)*time.Millisecond))
	}
	if s.Lead != nil {
		opts = append(opts, motion.WithLead(*s.Lead))
	}
	if s.Setback != nil {
		opts = append(opts, motion.WithSetback(*s.Setback))
	}
	if s.Lookahead != nil {
		opts = append(opts, motion.WithLookahead(*s.Lookahead))
	}
	if s.NoWait {
		opts = append(opts, motion.NoWait())
	}
	return opts
}

// String renders the step for logs.
func (s Step) String() string {
	switch s.Op {
	case string(motion.KindDriveDistance):
		return fmt.Sprintf("%s %.2f", s.Op, s.Distance)
	case string(motion.KindTurnToAngle), string(motion.KindLeftSwing), string(motion.KindRightSwing), OpSetHeading:
		return fmt.Sprintf("%s %.2f", s.Op, s.Angle)
	case string(motion.KindDriveToPose), OpSetCoordinates:
		return fmt.Sprintf("%s (%.2f, %.2f, %.2f)", s.Op, s.X, s.Y, s.Angle)
	case string(motion.KindFollowPath):
		return fmt.Sprintf("%s %d waypoints", s.Op, len(s.Path))
	case OpWaitUntil:
		return fmt.Sprintf("%s %.2f", s.Op, s.Units)
	case OpSleep:
		return fmt.Sprintf("%s %dms", s.Op, s.Duration)
	case OpStop:
		return fmt.Sprintf("%s %s", s.Op, s.Brake)
	case OpWait, OpCancel:
		return s.Op
	}
	return fmt.Sprintf("%s (%.2f, %.2f)", s.Op, s.X, s.Y)
}
