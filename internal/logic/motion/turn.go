package motion

import (
	"context"
	"fmt"
	"math"

	"github.com/cjeanneret/godrive/internal/debug"
	"github.com/cjeanneret/godrive/internal/hw/motor"
	"github.com/cjeanneret/godrive/internal/logic/geometry"
	"github.com/cjeanneret/godrive/internal/logic/pid"
	"go.uber.org/multierr"
)

type turnSide int

const (
	bothSides turnSide = iota
	leftSide           // left spins, right holds
	rightSide          // right spins backwards, left holds
)

func (c *Chassis) writeTurn(side turnSide, out float64) {
	var err error
	switch side {
	case leftSide:
		err = multierr.Combine(c.left.Spin(out), c.right.Stop(motor.Hold))
	case rightSide:
		err = multierr.Combine(c.right.Spin(-out), c.left.Stop(motor.Hold))
	default:
		err = c.DriveWithVoltage(out, -out)
	}
	if err != nil {
		debug.Error(fmt.Errorf("turn output %.2f: %w", out, err))
	}
}

// turnLoop rotates until the heading reaches aim(). aim is re-evaluated
// every tick so point turns track the live bearing.
//
// The loop follows the forced direction until the shortest-path error
// changes sign once, then switches to the shortest path so a long-way
// turn cannot overshoot past the target. With a voltage floor, a sign
// change of the error ends the motion instead of oscillating through 0.
func (c *Chassis) turnLoop(f Family, p Params, side turnSide, aim func() float64) loopFunc {
	return func(ctx context.Context) string {
		measure := func() (raw, forced float64) {
			d := aim() - c.odom.Heading()
			return geometry.AngleError(d, geometry.Fastest), geometry.AngleError(d, p.Direction)
		}

		prevRaw, prevErr := measure()
		pc := pid.New(prevErr, f.pid(p.SettleError, p.SettleTime, p.Timeout), c.pidOptions()...)
		crossed := false
		reason := ""

		if c.every(ctx, func() bool {
			if pc.IsSettled() {
				reason = settleReason(pc)
				return false
			}
			raw, e := measure()
			if geometry.Sign(raw) != geometry.Sign(prevRaw) {
				crossed = true
			}
			prevRaw = raw
			if crossed {
				e = raw
			}

			if p.MinVoltage != 0 && geometry.Sign(e) != geometry.Sign(prevErr) {
				reason = exitSignCrossed
				return false
			}
			c.addTraveled(math.Abs(e - prevErr))
			prevErr = e

			out := pc.Compute(e)
			out = geometry.Clamp(out, -p.MaxVoltage, p.MaxVoltage)
			out = geometry.ClampMinVoltage(out, p.MinVoltage)
			debug.Tick("turn", e, out)

			c.writeTurn(side, out)
			return true
		}) {
			return exitCancelled
		}
		return reason
	}
}

func (c *Chassis) toAngle(ctx context.Context, kind Kind, f func(Tuning) Family, side turnSide, angle float64, opts []Option) error {
	t := c.Tuning()
	fam := f(t)
	p, err := newParams(fam, t, opts)
	if err != nil {
		return err
	}
	m := c.Mirror()
	angle = m.Angle(angle)
	p.Direction = m.Direction(p.Direction)

	return c.start(ctx, p, Target{Kind: kind, Angle: angle},
		c.turnLoop(fam, p, side, func() float64 { return angle }))
}

func (c *Chassis) toPoint(ctx context.Context, kind Kind, f func(Tuning) Family, side turnSide, x, y float64, opts []Option) error {
	t := c.Tuning()
	fam := f(t)
	p, err := newParams(fam, t, opts)
	if err != nil {
		return err
	}
	m := c.Mirror()
	target := m.Point(geometry.Point{X: x, Y: y})
	p.Direction = m.Direction(p.Direction)
	if m.Angles {
		p.AngleOffset = -p.AngleOffset
	}

	aim := func() float64 {
		return geometry.Bearing(c.odom.Pose().Point(), target) + p.AngleOffset
	}
	return c.start(ctx, p, Target{Kind: kind, X: target.X, Y: target.Y, AngleOffset: p.AngleOffset},
		c.turnLoop(fam, p, side, aim))
}

func turnFamily(t Tuning) Family  { return t.Turn }
func swingFamily(t Tuning) Family { return t.Swing }

// TurnToAngle turns in place to an absolute heading.
func (c *Chassis) TurnToAngle(ctx context.Context, angle float64, opts ...Option) error {
	return c.toAngle(ctx, KindTurnToAngle, turnFamily, bothSides, angle, opts)
}

// LeftSwingToAngle pivots on the right wheel by driving the left side.
func (c *Chassis) LeftSwingToAngle(ctx context.Context, angle float64, opts ...Option) error {
	return c.toAngle(ctx, KindLeftSwing, swingFamily, leftSide, angle, opts)
}

// RightSwingToAngle pivots on the left wheel by driving the right side.
func (c *Chassis) RightSwingToAngle(ctx context.Context, angle float64, opts ...Option) error {
	return c.toAngle(ctx, KindRightSwing, swingFamily, rightSide, angle, opts)
}

// TurnToPoint turns in place to face (x, y), plus any angle offset.
func (c *Chassis) TurnToPoint(ctx context.Context, x, y float64, opts ...Option) error {
	return c.toPoint(ctx, KindTurnToPoint, turnFamily, bothSides, x, y, opts)
}

// LeftSwingToPoint swings on the left side to face (x, y).
func (c *Chassis) LeftSwingToPoint(ctx context.Context, x, y float64, opts ...Option) error {
	return c.toPoint(ctx, KindLeftSwingToPoint, swingFamily, leftSide, x, y, opts)
}

// RightSwingToPoint swings on the right side to face (x, y).
func (c *Chassis) RightSwingToPoint(ctx context.Context, x, y float64, opts ...Option) error {
	return c.toPoint(ctx, KindRightSwingToPoint, swingFamily, rightSide, x, y, opts)
}
