package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/godrive/internal/config"
	"github.com/cjeanneret/godrive/internal/debug"
	"github.com/cjeanneret/godrive/internal/hw/gpio"
	"github.com/cjeanneret/godrive/internal/hw/motor"
	"github.com/cjeanneret/godrive/internal/hw/sensor"
	"github.com/cjeanneret/godrive/internal/hw/sim"
	"github.com/cjeanneret/godrive/internal/logic/geometry"
	"github.com/cjeanneret/godrive/internal/logic/motion"
	"github.com/cjeanneret/godrive/internal/logic/odom"
	"go.uber.org/multierr"
)

// robot is a chassis wired to one backend, with its background loops
// tied to the context passed to newRobot.
type robot struct {
	chassis *motion.Chassis
	odom    *odom.Estimator
	sim     *sim.Drivetrain // nil on the gpio backend
	gpio    gpio.Driver     // nil on the sim backend
}

// drivetrain is what a backend provides to the odometry and motion layers.
type drivetrain struct {
	left, right motor.Group
	forward     sensor.Rotation
	sideways    sensor.Rotation // nil without a sideways tracker
	heading     sensor.Heading
	// direct is set when tracker sensors turn with the wheel (gear ratio 1).
	direct bool
	// headingScale overrides the configured scale when non-zero.
	headingScale float64
}

func newRobot(ctx context.Context, cfg *config.Config) (*robot, error) {
	r := &robot{}

	debug.Step(1, "Initializing "+cfg.Hardware.Backend+" backend")
	var (
		dt  drivetrain
		err error
	)
	switch cfg.Hardware.Backend {
	case config.BackendSim:
		r.sim, dt = newSimDrivetrain(cfg)
	case config.BackendGPIO:
		r.gpio, dt, err = newGPIODrivetrain(ctx, cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Hardware.Backend)
	}

	debug.Step(2, "Starting odometry")
	r.odom, err = newEstimator(cfg, dt)
	if err != nil {
		return nil, r.closeWith(fmt.Errorf("init odometry failed: %w", err))
	}
	go r.odom.Run(ctx)

	debug.Step(3, "Creating chassis")
	r.chassis, err = motion.New(motion.Config{
		Left:     dt.left,
		Right:    dt.right,
		Odometry: r.odom,
		Tuning:   cfg.MotionTuning(),
		Mirror:   cfg.MirrorToggles(),
		Tick:     cfg.TickPeriod(),
	})
	if err != nil {
		return nil, r.closeWith(fmt.Errorf("init chassis failed: %w", err))
	}
	debug.PrintStruct("Tuning", r.chassis.Tuning())
	debug.PrintStruct("Mirror", r.chassis.Mirror())
	return r, nil
}

func newSimDrivetrain(cfg *config.Config) (*sim.Drivetrain, drivetrain) {
	sc := sim.Config{
		TrackWidth:      cfg.Chassis.TrackWidth,
		KV:              cfg.Hardware.Sim.KV,
		Tau:             time.Duration(cfg.Hardware.Sim.TauMs) * time.Millisecond,
		CoastTau:        time.Duration(cfg.Hardware.Sim.CoastTauMs) * time.Millisecond,
		ForwardDiameter: cfg.Chassis.ForwardTracker.Diameter,
		ForwardOffset:   cfg.Chassis.ForwardTracker.CenterDistance,
	}
	if st := cfg.Chassis.SidewaysTracker; st != nil {
		sc.SidewaysDiameter = st.Diameter
		sc.SidewaysOffset = st.CenterDistance
	}
	d := sim.New(sc)
	debug.PrintStruct("Sim config", sc)

	dt := drivetrain{
		left:         d.Left(),
		right:        d.Right(),
		forward:      d.Forward(),
		heading:      d,
		direct:       true,
		headingScale: 360,
	}
	if cfg.Chassis.SidewaysTracker != nil {
		dt.sideways = d.Sideways()
	}
	return d, dt
}

func quadratureConfig(e config.EncoderConfig) sensor.QuadratureConfig {
	return sensor.QuadratureConfig{
		PinA:         e.PinA,
		PinB:         e.PinB,
		CountsPerRev: e.CountsPerRev,
		Reversed:     e.Reversed,
	}
}

func motorConfig(m config.MotorConfig, freq int) motor.Config {
	return motor.Config{
		PWMPin:   m.PWMPin,
		DirAPin:  m.DirAPin,
		DirBPin:  m.DirBPin,
		PWMFreq:  freq,
		Reversed: m.Reversed,
	}
}

func newGPIODrivetrain(ctx context.Context, cfg *config.Config) (gpio.Driver, drivetrain, error) {
	hw := cfg.Hardware
	debug.Value("Mock GPIO", hw.MockGPIO)
	g, err := gpio.NewDriver(hw.MockGPIO)
	if err != nil {
		return nil, drivetrain{}, fmt.Errorf("init GPIO failed: %w", err)
	}
	fail := func(err error) (gpio.Driver, drivetrain, error) {
		return nil, drivetrain{}, multierr.Append(err, g.Close())
	}

	left, err := motor.NewHBridge(g, motorConfig(hw.LeftMotor, hw.PWMFrequency))
	if err != nil {
		return fail(fmt.Errorf("left motor: %w", err))
	}
	right, err := motor.NewHBridge(g, motorConfig(hw.RightMotor, hw.PWMFrequency))
	if err != nil {
		return fail(fmt.Errorf("right motor: %w", err))
	}
	debug.PrintStruct("Left motor", hw.LeftMotor)
	debug.PrintStruct("Right motor", hw.RightMotor)

	encoder := func(name string, e config.EncoderConfig) (*sensor.Quadrature, error) {
		q, err := sensor.NewQuadrature(g, quadratureConfig(e))
		if err != nil {
			return nil, fmt.Errorf("%s encoder: %w", name, err)
		}
		go q.Run(ctx, cfg.EncoderPoll())
		debug.PrintStruct(name+" encoder", e)
		return q, nil
	}

	dt := drivetrain{left: left, right: right}
	if dt.forward, err = encoder("Forward", hw.ForwardEncoder); err != nil {
		return fail(err)
	}
	if hw.SidewaysEncoder != nil {
		if dt.sideways, err = encoder("Sideways", *hw.SidewaysEncoder); err != nil {
			return fail(err)
		}
	}
	le, err := encoder("Left", hw.LeftEncoder)
	if err != nil {
		return fail(err)
	}
	re, err := encoder("Right", hw.RightEncoder)
	if err != nil {
		return fail(err)
	}
	dt.heading = &sensor.WheelHeading{
		Left:            le,
		Right:           re,
		InchesPerDegree: math.Pi * cfg.Chassis.WheelDiameter / 360,
		TrackWidth:      cfg.Chassis.TrackWidth,
	}
	return g, dt, nil
}

func newEstimator(cfg *config.Config, dt drivetrain) (*odom.Estimator, error) {
	wheel := func(t config.TrackerConfig) *geometry.WheelCalculator {
		if dt.direct {
			return geometry.NewWheelCalculator(t.Diameter, 1)
		}
		return geometry.NewWheelCalculator(t.Diameter, t.GearRatio)
	}

	ft := cfg.Chassis.ForwardTracker
	oc := odom.Config{
		Forward: odom.Tracker{
			Sensor:         dt.forward,
			Wheel:          wheel(ft),
			CenterDistance: ft.CenterDistance,
		},
		Heading:      dt.heading,
		HeadingScale: cfg.Chassis.HeadingScale,
		Period:       cfg.OdomPeriod(),
	}
	if dt.headingScale != 0 {
		oc.HeadingScale = dt.headingScale
	}
	if st := cfg.Chassis.SidewaysTracker; st != nil && dt.sideways != nil {
		oc.Sideways = &odom.Tracker{
			Sensor:         dt.sideways,
			Wheel:          wheel(*st),
			CenterDistance: st.CenterDistance,
		}
	}
	return odom.New(oc)
}

// Close stops the drive and releases the GPIO driver.
func (r *robot) Close() error {
	return r.closeWith(nil)
}

func (r *robot) closeWith(err error) error {
	if r.chassis != nil {
		r.chassis.CancelMotion()
		err = multierr.Append(err, r.chassis.StopDrive(motor.Coast))
	}
	if r.gpio != nil {
		if cerr := r.gpio.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("closing GPIO driver: %w", cerr))
		}
		r.gpio = nil
	}
	return err
}
