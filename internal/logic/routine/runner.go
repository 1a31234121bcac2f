package routine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cjeanneret/godrive/internal/debug"
	"github.com/cjeanneret/godrive/internal/hw/motor"
	"github.com/cjeanneret/godrive/internal/logic/geometry"
	"github.com/cjeanneret/godrive/internal/logic/motion"
)

// Chassis is the part of motion.Chassis a program drives.
type Chassis interface {
	DriveDistance(ctx context.Context, distance float64, opts ...motion.Option) error
	TurnToAngle(ctx context.Context, angle float64, opts ...motion.Option) error
	LeftSwingToAngle(ctx context.Context, angle float64, opts ...motion.Option) error
	RightSwingToAngle(ctx context.Context, angle float64, opts ...motion.Option) error
	TurnToPoint(ctx context.Context, x, y float64, opts ...motion.Option) error
	LeftSwingToPoint(ctx context.Context, x, y float64, opts ...motion.Option) error
	RightSwingToPoint(ctx context.Context, x, y float64, opts ...motion.Option) error
	DriveToPoint(ctx context.Context, x, y float64, opts ...motion.Option) error
	DriveToPose(ctx context.Context, x, y, angle float64, opts ...motion.Option) error
	FollowPath(ctx context.Context, path []geometry.Point, opts ...motion.Option) error
	Wait(ctx context.Context) error
	WaitUntil(ctx context.Context, units float64) error
	CancelMotion()
	StopDrive(mode motor.BrakeMode) error
	SetCoordinates(x, y, heading float64)
	SetHeading(heading float64)
}

// Runner executes named programs on one chassis.
type Runner struct {
	chassis  Chassis
	programs map[string]Program
}

// NewRunner registers the built-in routines plus extra programs.
// An extra program replaces a built-in one with the same name.
func NewRunner(c Chassis, extra []Program) (*Runner, error) {
	r := &Runner{chassis: c, programs: make(map[string]Program)}
	for _, p := range Builtin() {
		r.programs[p.Name] = p
	}
	for _, p := range extra {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, ok := r.programs[p.Name]; ok {
			debug.Verbose("Program %q replaces the built-in routine", p.Name)
		}
		r.programs[p.Name] = p
	}
	return r, nil
}

// Names lists the registered programs in sorted order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.programs))
	for n := range r.programs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a program by name.
func (r *Runner) Lookup(name string) (Program, bool) {
	p, ok := r.programs[name]
	return p, ok
}

// Run executes the named program.
func (r *Runner) Run(ctx context.Context, name string) error {
	p, ok := r.programs[name]
	if !ok {
		return fmt.Errorf("unknown routine %q", name)
	}
	return Execute(ctx, r.chassis, p)
}

// Execute runs every step of p in order. It stops at the first failing
// step or when ctx is cancelled, and cancels any motion left running.
func Execute(ctx context.Context, c Chassis, p Program) error {
	debug.Section("Routine " + p.Name)
	defer c.CancelMotion()

	for i, s := range p.Steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		debug.Step(i+1, s.String())
		if err := runStep(ctx, c, s); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, s.Op, err)
		}
	}

	debug.Info("Routine %s complete", p.Name)
	return nil
}

func runStep(ctx context.Context, c Chassis, s Step) error {
	opts := s.Options()
	switch s.Op {
	case string(motion.KindDriveDistance):
		return c.DriveDistance(ctx, s.Distance, opts...)
	case string(motion.KindTurnToAngle):
		return c.TurnToAngle(ctx, s.Angle, opts...)
	case string(motion.KindLeftSwing):
		return c.LeftSwingToAngle(ctx, s.Angle, opts...)
	case string(motion.KindRightSwing):
		return c.RightSwingToAngle(ctx, s.Angle, opts...)
	case string(motion.KindTurnToPoint):
		return c.TurnToPoint(ctx, s.X, s.Y, opts...)
	case string(motion.KindLeftSwingToPoint):
		return c.LeftSwingToPoint(ctx, s.X, s.Y, opts...)
	case string(motion.KindRightSwingToPoint):
		return c.RightSwingToPoint(ctx, s.X, s.Y, opts...)
	case string(motion.KindDriveToPoint):
		return c.DriveToPoint(ctx, s.X, s.Y, opts...)
	case string(motion.KindDriveToPose):
		return c.DriveToPose(ctx, s.X, s.Y, s.Angle, opts...)
	case string(motion.KindFollowPath):
		path := make([]geometry.Point, len(s.Path))
		for i, w := range s.Path {
			path[i] = geometry.Point{X: w.X, Y: w.Y}
		}
		return c.FollowPath(ctx, path, opts...)
	case OpSetCoordinates:
		c.SetCoordinates(s.X, s.Y, s.Angle)
		debug.Pose("Reset", s.X, s.Y, s.Angle)
		return nil
	case OpSetHeading:
		c.SetHeading(s.Angle)
		return nil
	case OpWait:
		return c.Wait(ctx)
	case OpWaitUntil:
		return c.WaitUntil(ctx, s.Units)
	case OpCancel:
		c.CancelMotion()
		return nil
	case OpStop:
		mode, err := motor.ParseBrakeMode(s.Brake)
		if err != nil {
			return err
		}
		return c.StopDrive(mode)
	case OpSleep:
		t := time.NewTimer(time.Duration(s.Duration) * time.Millisecond)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
	return fmt.Errorf("unknown op %q", s.Op)
}
