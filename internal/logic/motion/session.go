package motion

import (
	"context"
	"errors"
	"time"

	"github.com/cjeanneret/godrive/internal/debug"
	"github.com/cjeanneret/godrive/internal/hw/motor"
	"github.com/cjeanneret/godrive/internal/logic/geometry"
	"github.com/cjeanneret/godrive/internal/logic/pid"
)

// Kind names a motion.
type Kind string

const (
	KindNone              Kind = ""
	KindDriveDistance     Kind = "drive_distance"
	KindTurnToAngle       Kind = "turn_to_angle"
	KindLeftSwing         Kind = "left_swing_to_angle"
	KindRightSwing        Kind = "right_swing_to_angle"
	KindTurnToPoint       Kind = "turn_to_point"
	KindLeftSwingToPoint  Kind = "left_swing_to_point"
	KindRightSwingToPoint Kind = "right_swing_to_point"
	KindDriveToPoint      Kind = "drive_to_point"
	KindDriveToPose       Kind = "drive_to_pose"
	KindFollowPath        Kind = "follow_path"
)

// Target is the setpoint of the current (or last) motion, already mirrored.
type Target struct {
	Kind        Kind             `json:"kind"`
	Distance    float64          `json:"distance,omitempty"`
	Origin      float64          `json:"origin,omitempty"` // forward tracker position when a distance drive began
	Angle       float64          `json:"angle,omitempty"`
	Heading     float64          `json:"heading,omitempty"`
	X           float64          `json:"x,omitempty"`
	Y           float64          `json:"y,omitempty"`
	AngleOffset float64          `json:"angle_offset,omitempty"`
	Path        []geometry.Point `json:"path,omitempty"`
}

// Exit reasons reported by motion loops.
const (
	exitSettled     = "settled"
	exitTimedOut    = "timed out"
	exitSignCrossed = "sign crossed"
	exitLineCrossed = "line crossed"
	exitCancelled   = "cancelled"
)

// ErrCancelled is returned to a caller waiting on a motion that was
// stopped by CancelMotion or replaced by another motion.
var ErrCancelled = errors.New("motion cancelled")

type session struct {
	cancel context.CancelFunc
	done   chan struct{}
	reason string // set before done is closed
}

// err reports how the session ended to a caller whose context is ctx.
func (s *session) err(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.reason == exitCancelled {
		return ErrCancelled
	}
	return nil
}

// loopFunc runs one motion until it exits and returns why.
type loopFunc func(ctx context.Context) string

func settleReason(pc *pid.Controller) string {
	if pc.TimedOut() {
		return exitTimedOut
	}
	return exitSettled
}

// start cancels and joins any running motion, then launches loop.
// When p.Wait is set it blocks until the loop exits or ctx is done, and
// returns ErrCancelled if the motion was stopped from elsewhere.
func (c *Chassis) start(ctx context.Context, p Params, t Target, loop loopFunc) error {
	c.sessMu.Lock()
	c.cancelLocked()

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel, done: make(chan struct{})}
	c.session = s

	c.stMu.Lock()
	c.running = true
	c.traveled = 0
	c.target = t
	c.stMu.Unlock()

	debug.Motion(string(t.Kind), debug.Fmt("%+v", t))
	debug.PrintStruct("params", p)

	go func() {
		defer close(s.done)
		defer cancel()
		reason := loop(runCtx)
		if runCtx.Err() != nil {
			reason = exitCancelled
		}

		c.stMu.Lock()
		c.running = false
		c.lastExit = reason
		traveled := c.traveled
		c.stMu.Unlock()

		if p.MinVoltage == 0 {
			if err := c.StopDrive(motor.Hold); err != nil {
				debug.Error(err)
			}
		}
		debug.Exit(string(t.Kind), reason, traveled)
		s.reason = reason
	}()
	c.sessMu.Unlock()

	if !p.Wait {
		return nil
	}
	select {
	case <-s.done:
		return s.err(ctx)
	case <-ctx.Done():
		<-s.done
		return ctx.Err()
	}
}

// cancelLocked stops the current loop and waits for it. Caller holds sessMu.
func (c *Chassis) cancelLocked() {
	if c.session == nil {
		return
	}
	c.session.cancel()
	<-c.session.done
	c.session = nil
}

// CancelMotion stops the running motion, if any, and waits for its loop
// to exit. The drivetrain holds unless the motion had a voltage floor.
func (c *Chassis) CancelMotion() {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	c.cancelLocked()
}

func (c *Chassis) current() *session {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.session
}

// Wait blocks until the current motion finishes or ctx is done. It returns
// ErrCancelled if the motion is stopped from elsewhere while waiting.
func (c *Chassis) Wait(ctx context.Context) error {
	s := c.current()
	if s == nil {
		return nil
	}
	select {
	case <-s.done:
		return s.err(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitUntil blocks until the current motion has traveled at least units
// (inches or degrees), or it finishes, or ctx is done. Like Wait, it
// returns ErrCancelled for a motion stopped from elsewhere.
func (c *Chassis) WaitUntil(ctx context.Context, units float64) error {
	s := c.current()
	if s == nil {
		return nil
	}
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		if c.DistanceTraveled() >= units {
			return nil
		}
		select {
		case <-s.done:
			return s.err(ctx)
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// IsInMotion reports whether a motion loop is running.
func (c *Chassis) IsInMotion() bool {
	c.stMu.RLock()
	defer c.stMu.RUnlock()
	return c.running
}

// LastExit returns why the most recent motion loop ended, or "" before
// the first motion has finished.
func (c *Chassis) LastExit() string {
	c.stMu.RLock()
	defer c.stMu.RUnlock()
	return c.lastExit
}

// DistanceTraveled returns the progress of the current motion: the sum of
// absolute error changes since it started.
func (c *Chassis) DistanceTraveled() float64 {
	c.stMu.RLock()
	defer c.stMu.RUnlock()
	return c.traveled
}

// Target returns the setpoint of the current or last motion.
func (c *Chassis) Target() Target {
	c.stMu.RLock()
	defer c.stMu.RUnlock()
	t := c.target
	t.Path = append([]geometry.Point(nil), t.Path...)
	return t
}

func (c *Chassis) setOrigin(forward float64) {
	c.stMu.Lock()
	c.target.Origin = forward
	c.stMu.Unlock()
}

func (c *Chassis) addTraveled(d float64) {
	c.stMu.Lock()
	c.traveled += d
	c.stMu.Unlock()
}

// every runs body once per tick until it returns false or ctx is done.
// It reports whether ctx ended the loop.
func (c *Chassis) every(ctx context.Context, body func() bool) bool {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for body() {
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
		}
	}
	return ctx.Err() != nil
}
