package motion

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cjeanneret/godrive/internal/hw/motor"
	"github.com/cjeanneret/godrive/internal/hw/sim"
	"github.com/cjeanneret/godrive/internal/logic/geometry"
	"github.com/cjeanneret/godrive/internal/logic/odom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	forwardOffset  = 0.5
	sidewaysOffset = 2.0
)

type rig struct {
	sim *sim.Drivetrain
	est *odom.Estimator
	ch  *Chassis
}

// newRig builds a chassis over a simulated drivetrain with odometry running.
func newRig(t *testing.T) *rig {
	t.Helper()
	d := sim.New(sim.Config{ForwardOffset: forwardOffset, SidewaysOffset: sidewaysOffset})
	est, err := odom.New(odom.Config{
		Forward:  odom.Tracker{Sensor: d.Forward(), Wheel: geometry.NewWheelCalculator(2.75, 1), CenterDistance: forwardOffset},
		Sideways: &odom.Tracker{Sensor: d.Sideways(), Wheel: geometry.NewWheelCalculator(2.75, 1), CenterDistance: sidewaysOffset},
		Heading:  d,
		Period:   5 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go est.Run(ctx)

	tuning := DefaultTuning()
	tuning.Drive.SettleTime = 100 * time.Millisecond
	tuning.Turn.SettleTime = 100 * time.Millisecond
	tuning.Swing.SettleTime = 100 * time.Millisecond

	ch, err := New(Config{Left: d.Left(), Right: d.Right(), Odometry: est, Tuning: tuning})
	require.NoError(t, err)
	t.Cleanup(ch.CancelMotion)
	return &rig{sim: d, est: est, ch: ch}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func headingDiff(a, b float64) float64 {
	return math.Abs(geometry.Reduce180(a - b))
}

func TestDriveDistance(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx := testContext(t)

	require.NoError(t, r.ch.DriveDistance(ctx, 12))
	assert.False(t, r.ch.IsInMotion())
	assert.InDelta(t, 12, r.ch.ForwardTrackerPosition(), 1.5)
	assert.Less(t, headingDiff(r.ch.AbsoluteHeading(), 0), 2.0)
	assert.Greater(t, r.ch.DistanceTraveled(), 10.0)
	assert.Equal(t, KindDriveDistance, r.ch.Target().Kind)

	truth := r.sim.Truth()
	assert.InDelta(t, 12, truth.Y, 2)
	assert.InDelta(t, 0, truth.X, 1)
}

func TestDriveDistance_Reverse(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	require.NoError(t, r.ch.DriveDistance(testContext(t), -18))
	assert.InDelta(t, -18, r.ch.ForwardTrackerPosition(), 1.5)
	assert.InDelta(t, -18, r.ch.Y(), 2)
}

func TestTurnToAngle_WrapsThroughZero(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.ch.SetCoordinates(0, 0, 350)

	require.NoError(t, r.ch.TurnToAngle(testContext(t), 90))
	assert.Less(t, headingDiff(r.ch.AbsoluteHeading(), 90), 2.0)
	// +100° clockwise, not -260°.
	assert.InDelta(t, 100, r.sim.Rotation(), 3)
}

func TestTurnToAngle_ForcedDirection(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	require.NoError(t, r.ch.TurnToAngle(testContext(t), -90, WithDirection(geometry.CW), WithTimeout(5*time.Second)))
	assert.Less(t, headingDiff(r.ch.AbsoluteHeading(), 270), 2.0)
	assert.InDelta(t, 270, r.sim.Rotation(), 4)
}

func TestTurnToAngle_MinVoltageExitsOnSignChange(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	start := time.Now()
	require.NoError(t, r.ch.TurnToAngle(testContext(t), 90, WithMinVoltage(3)))
	// Exited without waiting for the settle dwell or timeout.
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Less(t, headingDiff(r.ch.AbsoluteHeading(), 90), 10.0)

	// No hold at the end: the wheels are still driven at the floor.
	left, right := r.sim.Velocity()
	assert.Greater(t, math.Abs(left), 1.0)
	assert.Greater(t, math.Abs(right), 1.0)
	require.NoError(t, r.ch.StopDrive(motor.Coast))
}

func TestSwingToAngle(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx := testContext(t)

	require.NoError(t, r.ch.LeftSwingToAngle(ctx, 45))
	assert.Less(t, headingDiff(r.ch.AbsoluteHeading(), 45), 2.0)
	// Pivoting on the right wheel moves the center forward and right.
	truth := r.sim.Truth()
	assert.Greater(t, truth.X, 0.5)
	assert.Greater(t, truth.Y, 0.5)

	require.NoError(t, r.ch.RightSwingToAngle(ctx, 0))
	assert.Less(t, headingDiff(r.ch.AbsoluteHeading(), 0), 2.0)
}

func TestTurnToPoint(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx := testContext(t)

	require.NoError(t, r.ch.TurnToPoint(ctx, 10, 0))
	assert.Less(t, headingDiff(r.ch.AbsoluteHeading(), 90), 2.0)

	require.NoError(t, r.ch.TurnToPoint(ctx, 0, 10, WithAngleOffset(180)))
	assert.Less(t, headingDiff(r.ch.AbsoluteHeading(), 180), 2.5)
	assert.Equal(t, KindTurnToPoint, r.ch.Target().Kind)
}

func TestDriveToPoint(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	require.NoError(t, r.ch.DriveToPoint(testContext(t), 12, 24))
	pose := r.ch.Pose()
	assert.Less(t, geometry.Distance(pose.Point(), geometry.Point{X: 12, Y: 24}), 2.5)
}

func TestDriveToPoint_ExitsOnLineCross(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	// A voltage floor keeps the robot moving through the goal, so it
	// leaves by crossing the line through the goal, not by settling.
	err := r.ch.DriveToPoint(testContext(t), 0, 24,
		WithMinVoltage(3), WithSettleError(0.3), WithSettleTime(time.Second))
	require.NoError(t, err)
	assert.Equal(t, exitLineCrossed, r.ch.LastExit())
	assert.GreaterOrEqual(t, r.ch.Y(), 24.0)
	assert.Less(t, r.ch.Y(), 30.0)
	require.NoError(t, r.ch.StopDrive(motor.Coast))
}

func TestCarrot_BehindGoal(t *testing.T) {
	goal := geometry.Point{X: 24, Y: 24}
	carrot := Carrot(goal, 90, 0.5, 2, geometry.Point{})

	// Facing +X, so "behind" is smaller X on the same Y.
	assert.Less(t, carrot.X, goal.X)
	assert.InDelta(t, goal.Y, carrot.Y, 1e-9)
	assert.InDelta(t, 0.5*math.Hypot(24, 24)+2, goal.X-carrot.X, 1e-9)

	// No lead and no setback puts the carrot on the goal.
	assert.Equal(t, goal, Carrot(goal, 90, 0, 0, geometry.Point{}))
}

func TestDriveToPose(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	start := time.Now()
	require.NoError(t, r.ch.DriveToPose(testContext(t), 24, 24, 90, WithLead(0.5)))
	assert.Less(t, time.Since(start), 5*time.Second, "should exit before the drive timeout")

	pose := r.ch.Pose()
	assert.Less(t, geometry.Distance(pose.Point(), geometry.Point{X: 24, Y: 24}), 4.0)
	assert.Less(t, headingDiff(pose.Heading, 90), 25.0)
	assert.Equal(t, Target{Kind: KindDriveToPose, X: 24, Y: 24, Angle: 90}, r.ch.Target())
}

func TestDriveToPose_ExitsOnLineCross(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	// Arriving at 90°, the exit line is x = 24.
	err := r.ch.DriveToPose(testContext(t), 24, 24, 90,
		WithLead(0.5), WithMinVoltage(3), WithSettleError(0.3), WithSettleTime(time.Second))
	require.NoError(t, err)
	assert.Equal(t, exitLineCrossed, r.ch.LastExit())
	assert.GreaterOrEqual(t, r.ch.X(), 24.0)
	require.NoError(t, r.ch.StopDrive(motor.Coast))
}

func TestFollowPath(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	path := []geometry.Point{{X: 0, Y: 24}, {X: 24, Y: 24}}
	require.NoError(t, r.ch.FollowPath(testContext(t), path, WithLookahead(8), WithTimeout(8*time.Second)))

	pose := r.ch.Pose()
	assert.Less(t, geometry.Distance(pose.Point(), geometry.Point{X: 24, Y: 24}), 3.0)
	assert.Greater(t, r.ch.DistanceTraveled(), 30.0)

	tgt := r.ch.Target()
	require.Len(t, tgt.Path, 3, "current position is prepended")
	assert.Equal(t, geometry.Point{}, tgt.Path[0])
}

func TestMirroring_AppliedAtEntry(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx := testContext(t)
	r.ch.SetMirror(geometry.Mirror{Angles: true, X: true})

	require.NoError(t, r.ch.DriveToPose(ctx, 10, 20, 30, NoWait()))
	tgt := r.ch.Target()
	assert.Equal(t, -10.0, tgt.X)
	assert.Equal(t, 20.0, tgt.Y)
	assert.Equal(t, 330.0, tgt.Angle)

	require.NoError(t, r.ch.TurnToAngle(ctx, 45, NoWait()))
	assert.Equal(t, 315.0, r.ch.Target().Angle)
	r.ch.CancelMotion()

	assert.True(t, r.ch.AnglesMirrored())
	assert.True(t, r.ch.XMirrored())
	assert.False(t, r.ch.YMirrored())
}

func TestNewMotionSupersedesRunning(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx := testContext(t)

	require.NoError(t, r.ch.DriveDistance(ctx, 100, NoWait()))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, r.ch.TurnToAngle(ctx, 90, NoWait()))

	assert.True(t, r.ch.IsInMotion())
	assert.Equal(t, KindTurnToAngle, r.ch.Target().Kind)
	require.NoError(t, r.ch.Wait(ctx))
	assert.False(t, r.ch.IsInMotion())
	assert.Less(t, headingDiff(r.ch.AbsoluteHeading(), 90), 2.0)
}

func TestCancelMotion(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	require.NoError(t, r.ch.DriveDistance(testContext(t), 100, NoWait()))
	time.Sleep(200 * time.Millisecond)
	r.ch.CancelMotion()
	assert.False(t, r.ch.IsInMotion())

	// Zero floor: the drivetrain is held after a cancel.
	time.Sleep(300 * time.Millisecond)
	left, right := r.sim.Velocity()
	assert.Less(t, math.Abs(left), 5.0)
	assert.Less(t, math.Abs(right), 5.0)
	assert.Less(t, r.ch.ForwardTrackerPosition(), 50.0)
}

func TestCancelMotion_StopsWaitingCaller(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx := testContext(t)

	go func() {
		time.Sleep(200 * time.Millisecond)
		r.ch.CancelMotion()
	}()
	// Two back-to-back steps, as a routine would run them.
	steps := func() error {
		if err := r.ch.DriveDistance(ctx, 100); err != nil {
			return err
		}
		return r.ch.DriveDistance(ctx, 100)
	}
	err := steps()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, exitCancelled, r.ch.LastExit())

	time.Sleep(100 * time.Millisecond)
	assert.False(t, r.ch.IsInMotion(), "the second step must not start")
	assert.Less(t, r.ch.ForwardTrackerPosition(), 50.0)
}

func TestSupersededMotionReportsCancelled(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx := testContext(t)

	errc := make(chan error, 1)
	go func() { errc <- r.ch.DriveDistance(ctx, 100) }()
	require.Eventually(t, r.ch.IsInMotion, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, r.ch.TurnToAngle(ctx, 45, NoWait()))
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded drive did not return")
	}
	require.NoError(t, r.ch.Wait(ctx))
	assert.Equal(t, exitSettled, r.ch.LastExit())
}

func TestWait_CancelledFromElsewhere(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx := testContext(t)

	require.NoError(t, r.ch.DriveDistance(ctx, 100, NoWait()))
	go func() {
		time.Sleep(100 * time.Millisecond)
		r.ch.CancelMotion()
	}()
	assert.ErrorIs(t, r.ch.Wait(ctx), ErrCancelled)

	require.NoError(t, r.ch.DriveDistance(ctx, 100, NoWait()))
	go func() {
		time.Sleep(100 * time.Millisecond)
		r.ch.CancelMotion()
	}()
	assert.ErrorIs(t, r.ch.WaitUntil(ctx, 90), ErrCancelled)
}

func TestSynchronousMotionHonoursContext(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := r.ch.DriveDistance(ctx, 100)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, r.ch.IsInMotion(), "the loop is joined before returning")
}

func TestWaitUntil(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx := testContext(t)

	require.NoError(t, r.ch.DriveDistance(ctx, 36, NoWait()))
	require.NoError(t, r.ch.WaitUntil(ctx, 12))
	assert.GreaterOrEqual(t, r.ch.DistanceTraveled(), 12.0)
	assert.True(t, r.ch.IsInMotion())
	assert.Less(t, r.ch.ForwardTrackerPosition(), 30.0)

	require.NoError(t, r.ch.Wait(ctx))
	assert.InDelta(t, 36, r.ch.ForwardTrackerPosition(), 1.5)

	// Nothing running: returns at once.
	require.NoError(t, r.ch.WaitUntil(ctx, 1000))
}

func TestInvalidParams(t *testing.T) {
	r := newRig(t)
	ctx := testContext(t)

	cases := map[string]Option{
		"zero settle error":   WithSettleError(0),
		"negative timeout":    WithTimeout(-time.Second),
		"max above ceiling":   WithMaxVoltage(13),
		"min above max":       WithMinVoltage(11),
		"zero lookahead":      WithLookahead(0),
		"negative lead":       WithLead(-0.1),
		"heading max too big": WithHeadingMaxVoltage(20),
	}
	for name, opt := range cases {
		t.Run(name, func(t *testing.T) {
			err := r.ch.DriveDistance(ctx, 12, opt)
			assert.True(t, errors.Is(err, ErrInvalidParams), "got %v", err)
			assert.False(t, r.ch.IsInMotion())
		})
	}
}

func TestSetters(t *testing.T) {
	r := newRig(t)

	assert.Error(t, r.ch.SetDriveExitConditions(0, time.Second, time.Second))
	assert.Error(t, r.ch.SetTurnExitConditions(1, -time.Second, time.Second))
	assert.Error(t, r.ch.SetSwingConstants(15, 1, 0, 0, 0))
	assert.Error(t, r.ch.SetLookahead(-1))

	require.NoError(t, r.ch.SetDriveExitConditions(2, 0, 0))
	require.NoError(t, r.ch.SetBoomerang(0.6, 1))
	require.NoError(t, r.ch.SetMinVoltages(2, 3, 4))
	tun := r.ch.Tuning()
	assert.Equal(t, 2.0, tun.Drive.SettleError)
	assert.Equal(t, time.Duration(0), tun.Drive.Timeout)
	assert.Equal(t, 0.6, tun.BoomerangLead)
	assert.Equal(t, 4.0, tun.Swing.MinVoltage)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	d := sim.New(sim.Config{})
	est, err := odom.New(odom.Config{
		Forward: odom.Tracker{Sensor: d.Forward(), Wheel: geometry.NewWheelCalculator(2.75, 1)},
		Heading: d,
	})
	require.NoError(t, err)

	bad := DefaultTuning()
	bad.Turn.SettleError = 0
	_, err = New(Config{Left: d.Left(), Right: d.Right(), Odometry: est, Tuning: bad})
	assert.Error(t, err)
}
