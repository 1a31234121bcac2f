package motion

import (
	"context"
	"math"

	"github.com/cjeanneret/godrive/internal/debug"
	"github.com/cjeanneret/godrive/internal/logic/geometry"
	"github.com/cjeanneret/godrive/internal/logic/pid"
)

// dupeTolerance merges tangent intersections that differ only by rounding.
const dupeTolerance = 1e-6

func (c *Chassis) headingPID(t Tuning, initialError float64) *pid.Controller {
	cfg := t.Heading.pid(0, 0, 0)
	return pid.New(initialError, cfg, c.pidOptions()...)
}

// DriveDistance drives straight along the forward tracker, holding the
// heading it started with unless WithHeading is given.
func (c *Chassis) DriveDistance(ctx context.Context, distance float64, opts ...Option) error {
	t := c.Tuning()
	p, err := newParams(t.Drive, t, opts)
	if err != nil {
		return err
	}
	heading := c.odom.Heading()
	if p.hasHeading {
		heading = c.Mirror().Angle(p.heading)
	}

	target := Target{Kind: KindDriveDistance, Distance: distance, Heading: heading}
	return c.start(ctx, p, target, func(ctx context.Context) string {
		start := c.odom.ForwardPosition()
		c.setOrigin(start)
		drive := pid.New(distance, t.Drive.pid(p.SettleError, p.SettleTime, p.Timeout), c.pidOptions()...)
		hold := c.headingPID(t, geometry.Reduce180(heading-c.odom.Heading()))
		prevErr := distance

		reason := ""
		if c.every(ctx, func() bool {
			if drive.IsSettled() {
				reason = settleReason(drive)
				return false
			}
			e := distance + start - c.odom.ForwardPosition()
			c.addTraveled(math.Abs(e - prevErr))
			prevErr = e

			he := geometry.Reduce180(heading - c.odom.Heading())
			out := geometry.Clamp(drive.Compute(e), -p.MaxVoltage, p.MaxVoltage)
			h := geometry.Clamp(hold.Compute(he), -p.HeadingMaxVoltage, p.HeadingMaxVoltage)
			out = geometry.ClampMinVoltage(out, p.MinVoltage)
			debug.Tick("drive", e, out)

			c.drive(out+h, out-h)
			return true
		}) {
			return exitCancelled
		}
		return reason
	})
}

// cosineStep is one tick of the point-chasing dual loop: the drive output
// is scaled by cos(heading error) so the robot slows when misaligned and
// reverses when the target is behind it.
func (c *Chassis) cosineStep(p Params, drive, heading *pid.Controller, driveErr, headingErr float64, quietHeading bool) {
	out := drive.Compute(driveErr)
	scale := math.Cos(geometry.ToRad(headingErr))
	out *= scale
	h := heading.Compute(geometry.Reduce90(headingErr))
	if quietHeading {
		h = 0
	}

	limit := math.Abs(scale) * p.MaxVoltage
	out = geometry.Clamp(out, -limit, limit)
	h = geometry.Clamp(h, -p.HeadingMaxVoltage, p.HeadingMaxVoltage)
	out = geometry.ClampMinVoltage(out, p.MinVoltage)
	debug.Tick("drive", driveErr, out)

	c.drive(geometry.ScaleVoltages(out, h, geometry.MaxVoltage))
}

// DriveToPoint drives to (x, y) with whatever final heading results.
// It also exits when the robot crosses the line through the target
// perpendicular to the initial approach, so chained motions flow.
func (c *Chassis) DriveToPoint(ctx context.Context, x, y float64, opts ...Option) error {
	t := c.Tuning()
	p, err := newParams(t.Drive, t, opts)
	if err != nil {
		return err
	}
	goal := c.Mirror().Point(geometry.Point{X: x, Y: y})
	pos := c.odom.Pose().Point()
	approach := geometry.Bearing(pos, goal)

	target := Target{Kind: KindDriveToPoint, X: goal.X, Y: goal.Y, Heading: approach}
	return c.start(ctx, p, target, func(ctx context.Context) string {
		pos := c.odom.Pose().Point()
		de := geometry.Distance(pos, goal)
		drive := pid.New(de, t.Drive.pid(p.SettleError, p.SettleTime, p.Timeout), c.pidOptions()...)
		hold := c.headingPID(t, geometry.Reduce90(geometry.Reduce180(approach-c.odom.Heading())))
		prevLine := geometry.IsLineSettled(goal, approach, pos)
		prevErr := de

		reason := ""
		if c.every(ctx, func() bool {
			if drive.IsSettled() {
				reason = settleReason(drive)
				return false
			}
			pose := c.odom.Pose()
			pos := pose.Point()
			line := geometry.IsLineSettled(goal, approach, pos)
			if line && !prevLine {
				reason = exitLineCrossed
				return false
			}
			prevLine = line

			de := geometry.Distance(pos, goal)
			c.addTraveled(math.Abs(de - prevErr))
			prevErr = de

			he := geometry.Reduce180(geometry.Bearing(pos, goal) - pose.Heading)
			c.cosineStep(p, drive, hold, de, he, de < p.SettleError)
			return true
		}) {
			return exitCancelled
		}
		return reason
	})
}

// Carrot returns the boomerang chase point for a robot at pos: behind the
// goal along the final heading by lead * distance + setback.
func Carrot(goal geometry.Point, angle, lead, setback float64, pos geometry.Point) geometry.Point {
	d := geometry.Distance(pos, goal)
	a := geometry.ToRad(angle)
	back := lead*d + setback
	return geometry.Point{X: goal.X - math.Sin(a)*back, Y: goal.Y - math.Cos(a)*back}
}

// DriveToPose drives to (x, y) arriving at heading angle, chasing a
// carrot that slides onto the goal as the robot closes in.
func (c *Chassis) DriveToPose(ctx context.Context, x, y, angle float64, opts ...Option) error {
	t := c.Tuning()
	p, err := newParams(t.Drive, t, opts)
	if err != nil {
		return err
	}
	m := c.Mirror()
	goal := m.Point(geometry.Point{X: x, Y: y})
	angle = m.Angle(angle)

	target := Target{Kind: KindDriveToPose, X: goal.X, Y: goal.Y, Angle: angle}
	return c.start(ctx, p, target, func(ctx context.Context) string {
		pos := c.odom.Pose().Point()
		drive := pid.New(geometry.Distance(pos, goal), t.Drive.pid(p.SettleError, p.SettleTime, p.Timeout), c.pidOptions()...)
		hold := c.headingPID(t, geometry.Reduce90(geometry.Reduce180(geometry.Bearing(pos, goal)-c.odom.Heading())))

		prevLine := geometry.IsLineSettled(goal, angle, pos)
		prevSide := geometry.IsLineSettled(goal, angle+90, pos)
		crossedCenter := false
		prevErr := geometry.Distance(pos, Carrot(goal, angle, p.Lead, p.Setback, pos))

		reason := ""
		if c.every(ctx, func() bool {
			if drive.IsSettled() {
				reason = settleReason(drive)
				return false
			}
			pose := c.odom.Pose()
			pos := pose.Point()
			line := geometry.IsLineSettled(goal, angle, pos)
			if line && !prevLine {
				reason = exitLineCrossed
				return false
			}
			prevLine = line
			if geometry.IsLineSettled(goal, angle+90, pos) != prevSide {
				crossedCenter = true
			}

			dist := geometry.Distance(pos, goal)
			carrot := Carrot(goal, angle, p.Lead, p.Setback, pos)
			de := geometry.Distance(pos, carrot)
			c.addTraveled(math.Abs(de - prevErr))
			prevErr = de

			he := geometry.Reduce180(geometry.Bearing(pos, carrot) - pose.Heading)
			if de < p.SettleError || crossedCenter || de < p.Setback {
				he = geometry.Reduce180(angle - pose.Heading)
				de = dist
			}
			c.cosineStep(p, drive, hold, de, he, false)
			return true
		}) {
			return exitCancelled
		}
		return reason
	})
}

// FollowPath chases a lookahead point along the waypoints (pure pursuit).
// The current position is prepended so the robot may start off the path.
// After the last segment it closes on the final waypoint until settled.
func (c *Chassis) FollowPath(ctx context.Context, path []geometry.Point, opts ...Option) error {
	t := c.Tuning()
	p, err := newParams(t.Drive, t, opts)
	if err != nil {
		return err
	}
	if len(path) == 0 {
		return nil
	}
	m := c.Mirror()
	pts := make([]geometry.Point, 0, len(path)+1)
	pts = append(pts, c.odom.Pose().Point())
	for _, pt := range path {
		pts = append(pts, m.Point(pt))
	}

	last := pts[len(pts)-1]
	target := Target{Kind: KindFollowPath, X: last.X, Y: last.Y, Path: pts}
	return c.start(ctx, p, target, func(ctx context.Context) string {
		drive := pid.New(0, t.Drive.pid(p.SettleError, p.SettleTime, p.Timeout), c.pidOptions()...)
		hold := c.headingPID(t, 0)
		chase := pts[0]
		prev := pts[0]

		step := func(pose geometry.Point, heading float64) {
			c.addTraveled(geometry.Distance(pose, prev))
			prev = pose
			de := geometry.Distance(pose, chase)
			he := geometry.Reduce180(geometry.Bearing(pose, chase) - heading)
			c.cosineStep(p, drive, hold, de, he, de < p.SettleError)
		}

		for i := 0; i+1 < len(pts); i++ {
			start, end := pts[i], pts[i+1]
			reason := ""
			if c.every(ctx, func() bool {
				pose := c.odom.Pose()
				pos := pose.Point()
				if geometry.Distance(pos, end) <= p.Lookahead {
					return false
				}
				if drive.TimedOut() {
					reason = exitTimedOut
					return false
				}
				hits := geometry.LineCircleIntersections(pos, p.Lookahead, start, end)
				if len(hits) == 2 && geometry.Distance(hits[0], hits[1]) < dupeTolerance {
					hits = hits[:1]
				}
				switch len(hits) {
				case 2:
					chase = hits[1]
					if geometry.Distance(hits[0], end) < geometry.Distance(hits[1], end) {
						chase = hits[0]
					}
				case 1:
					chase = hits[0]
				}
				step(pos, pose.Heading)
				return true
			}) {
				return exitCancelled
			}
			if reason != "" {
				return reason
			}
			debug.Verbose("Path segment %d done", i)
		}

		chase = last
		reason := ""
		if c.every(ctx, func() bool {
			if drive.IsSettled() {
				reason = settleReason(drive)
				return false
			}
			pose := c.odom.Pose()
			step(pose.Point(), pose.Heading)
			return true
		}) {
			return exitCancelled
		}
		return reason
	})
}
