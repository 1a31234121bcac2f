// Package motion runs closed-loop motions on a differential drivetrain.
// One motion owns the drivetrain at a time; starting a new one cancels
// and joins the previous loop before the new loop writes a single volt.
package motion

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/godrive/internal/debug"
	"github.com/cjeanneret/godrive/internal/hw/motor"
	"github.com/cjeanneret/godrive/internal/logic/geometry"
	"github.com/cjeanneret/godrive/internal/logic/odom"
	"github.com/cjeanneret/godrive/internal/logic/pid"
	"go.uber.org/multierr"
)

// Config wires a Chassis to its hardware.
type Config struct {
	Left, Right motor.Group
	Odometry    *odom.Estimator
	Tuning      Tuning
	Mirror      geometry.Mirror
	Tick        time.Duration // control loop period, 0 = 10ms
	Clock       pid.Clock     // nil = wall clock
}

// Chassis is the motion executor for one drivetrain.
type Chassis struct {
	left, right motor.Group
	odom        *odom.Estimator
	tick        time.Duration
	clock       pid.Clock

	cfgMu  sync.RWMutex
	tuning Tuning
	mirror geometry.Mirror

	// sessMu serializes motion starts and cancels.
	sessMu  sync.Mutex
	session *session

	stMu     sync.RWMutex
	running  bool
	traveled float64
	lastExit string
	target   Target
}

// New validates the tuning and returns an idle chassis.
func New(cfg Config) (*Chassis, error) {
	if cfg.Left == nil || cfg.Right == nil {
		return nil, errors.New("chassis needs left and right motor groups")
	}
	if cfg.Odometry == nil {
		return nil, errors.New("chassis needs an odometry estimator")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Millisecond
	}
	return &Chassis{
		left:   cfg.Left,
		right:  cfg.Right,
		odom:   cfg.Odometry,
		tick:   cfg.Tick,
		clock:  cfg.Clock,
		tuning: cfg.Tuning,
		mirror: cfg.Mirror,
	}, nil
}

func (c *Chassis) pidOptions() []pid.Option {
	if c.clock == nil {
		return nil
	}
	return []pid.Option{pid.WithClock(c.clock)}
}

// --- drivetrain outputs ---

// DriveWithVoltage spins each side at the given voltage.
func (c *Chassis) DriveWithVoltage(left, right float64) error {
	return multierr.Combine(c.left.Spin(left), c.right.Spin(right))
}

// StopDrive stops both sides with the given brake mode.
func (c *Chassis) StopDrive(mode motor.BrakeMode) error {
	return multierr.Combine(c.left.Stop(mode), c.right.Stop(mode))
}

// drive writes voltages from a control loop. Failures are logged, not returned.
func (c *Chassis) drive(left, right float64) {
	if err := c.DriveWithVoltage(left, right); err != nil {
		debug.Error(fmt.Errorf("drive %.2f/%.2f: %w", left, right, err))
	}
}

// --- tuning ---

// Tuning returns a copy of the tuned constants.
func (c *Chassis) Tuning() Tuning {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.tuning
}

// SetTuning replaces every tuned constant after validating them.
func (c *Chassis) SetTuning(t Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.cfgMu.Lock()
	c.tuning = t
	c.cfgMu.Unlock()
	return nil
}

func (c *Chassis) updateTuning(edit func(*Tuning)) error {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	t := c.tuning
	edit(&t)
	if err := t.Validate(); err != nil {
		return err
	}
	c.tuning = t
	return nil
}

// SetDriveConstants sets drive voltage bounds and gains.
func (c *Chassis) SetDriveConstants(maxVoltage, kp, ki, kd, startI float64) error {
	return c.updateTuning(func(t *Tuning) {
		t.Drive.MaxVoltage, t.Drive.Kp, t.Drive.Ki, t.Drive.Kd, t.Drive.StartI = maxVoltage, kp, ki, kd, startI
	})
}

// SetHeadingConstants sets the heading correction bound and gains.
func (c *Chassis) SetHeadingConstants(maxVoltage, kp, ki, kd, startI float64) error {
	return c.updateTuning(func(t *Tuning) {
		t.Heading.MaxVoltage, t.Heading.Kp, t.Heading.Ki, t.Heading.Kd, t.Heading.StartI = maxVoltage, kp, ki, kd, startI
	})
}

// SetTurnConstants sets turn voltage bounds and gains.
func (c *Chassis) SetTurnConstants(maxVoltage, kp, ki, kd, startI float64) error {
	return c.updateTuning(func(t *Tuning) {
		t.Turn.MaxVoltage, t.Turn.Kp, t.Turn.Ki, t.Turn.Kd, t.Turn.StartI = maxVoltage, kp, ki, kd, startI
	})
}

// SetSwingConstants sets swing voltage bounds and gains.
func (c *Chassis) SetSwingConstants(maxVoltage, kp, ki, kd, startI float64) error {
	return c.updateTuning(func(t *Tuning) {
		t.Swing.MaxVoltage, t.Swing.Kp, t.Swing.Ki, t.Swing.Kd, t.Swing.StartI = maxVoltage, kp, ki, kd, startI
	})
}

// SetDriveExitConditions sets the drive settle band, dwell and timeout.
func (c *Chassis) SetDriveExitConditions(settleError float64, settleTime, timeout time.Duration) error {
	return c.updateTuning(func(t *Tuning) {
		t.Drive.SettleError, t.Drive.SettleTime, t.Drive.Timeout = settleError, settleTime, timeout
	})
}

// SetTurnExitConditions sets the turn settle band, dwell and timeout.
func (c *Chassis) SetTurnExitConditions(settleError float64, settleTime, timeout time.Duration) error {
	return c.updateTuning(func(t *Tuning) {
		t.Turn.SettleError, t.Turn.SettleTime, t.Turn.Timeout = settleError, settleTime, timeout
	})
}

// SetSwingExitConditions sets the swing settle band, dwell and timeout.
func (c *Chassis) SetSwingExitConditions(settleError float64, settleTime, timeout time.Duration) error {
	return c.updateTuning(func(t *Tuning) {
		t.Swing.SettleError, t.Swing.SettleTime, t.Swing.Timeout = settleError, settleTime, timeout
	})
}

// SetMinVoltages sets the chaining floors of the drive, turn and swing families.
func (c *Chassis) SetMinVoltages(drive, turn, swing float64) error {
	return c.updateTuning(func(t *Tuning) {
		t.Drive.MinVoltage, t.Turn.MinVoltage, t.Swing.MinVoltage = drive, turn, swing
	})
}

// SetBoomerang sets the pose drive carrot constants.
func (c *Chassis) SetBoomerang(lead, setback float64) error {
	return c.updateTuning(func(t *Tuning) {
		t.BoomerangLead, t.BoomerangSetback = lead, setback
	})
}

// SetLookahead sets the pure pursuit lookahead distance.
func (c *Chassis) SetLookahead(d float64) error {
	return c.updateTuning(func(t *Tuning) { t.LookaheadDistance = d })
}

// --- mirroring ---

// Mirror returns the current mirroring toggles.
func (c *Chassis) Mirror() geometry.Mirror {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.mirror
}

// SetMirror replaces all three mirroring toggles.
func (c *Chassis) SetMirror(m geometry.Mirror) {
	c.cfgMu.Lock()
	c.mirror = m
	c.cfgMu.Unlock()
	debug.Verbose("Mirroring: angles=%t x=%t y=%t", m.Angles, m.X, m.Y)
}

// SetMirrorAngles toggles heading reflection.
func (c *Chassis) SetMirrorAngles(on bool) {
	m := c.Mirror()
	m.Angles = on
	c.SetMirror(m)
}

// SetMirrorX toggles X reflection.
func (c *Chassis) SetMirrorX(on bool) {
	m := c.Mirror()
	m.X = on
	c.SetMirror(m)
}

// SetMirrorY toggles Y reflection.
func (c *Chassis) SetMirrorY(on bool) {
	m := c.Mirror()
	m.Y = on
	c.SetMirror(m)
}

// AnglesMirrored reports the heading toggle.
func (c *Chassis) AnglesMirrored() bool { return c.Mirror().Angles }

// XMirrored reports the X toggle.
func (c *Chassis) XMirrored() bool { return c.Mirror().X }

// YMirrored reports the Y toggle.
func (c *Chassis) YMirrored() bool { return c.Mirror().Y }

// --- pose ---

// SetCoordinates resets odometry. Coordinates go through the mirror like
// motion targets, so one routine serves both field sides.
func (c *Chassis) SetCoordinates(x, y, heading float64) {
	m := c.Mirror()
	c.odom.SetCoordinates(m.MirrorX(x), m.MirrorY(y), m.Angle(heading))
}

// SetHeading resets the heading reference, mirrored like SetCoordinates.
func (c *Chassis) SetHeading(heading float64) {
	c.odom.SetHeading(c.Mirror().Angle(heading))
}

// Pose returns the live pose.
func (c *Chassis) Pose() odom.Pose { return c.odom.Pose() }

// X returns the live X position in inches.
func (c *Chassis) X() float64 { return c.odom.Pose().X }

// Y returns the live Y position in inches.
func (c *Chassis) Y() float64 { return c.odom.Pose().Y }

// AbsoluteHeading returns the live heading in [0,360).
func (c *Chassis) AbsoluteHeading() float64 { return c.odom.Heading() }

// ForwardTrackerPosition returns the forward tracker travel in inches.
func (c *Chassis) ForwardTrackerPosition() float64 { return c.odom.ForwardPosition() }
