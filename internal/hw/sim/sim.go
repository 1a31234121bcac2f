// Package sim is a differential drivetrain model that stands in for the
// motors, tracking wheels and heading sensor on a bench or in tests.
package sim

import (
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/godrive/internal/debug"
	"github.com/cjeanneret/godrive/internal/hw/motor"
	"github.com/felixge/pidctrl"
)

const step = time.Millisecond

// Config holds the physical model constants. Zero fields take defaults.
type Config struct {
	TrackWidth       float64       // inches between wheels (12)
	KV               float64       // steady-state inches/s per volt (5)
	Tau              time.Duration // drive response time constant (100ms)
	CoastTau         time.Duration // free-wheel decay time constant (1s)
	ForwardDiameter  float64       // forward tracker wheel (2.75)
	SidewaysDiameter float64       // sideways tracker wheel (2.75)
	ForwardOffset    float64       // forward tracker, inches right of center
	SidewaysOffset   float64       // sideways tracker, inches behind center
	HoldKp           float64       // hold-brake position gains (volts per inch)
	HoldKi           float64
	HoldKd           float64
}

func (c Config) withDefaults() Config {
	if c.TrackWidth <= 0 {
		c.TrackWidth = 12
	}
	if c.KV <= 0 {
		c.KV = 5
	}
	if c.Tau <= 0 {
		c.Tau = 100 * time.Millisecond
	}
	if c.CoastTau <= 0 {
		c.CoastTau = time.Second
	}
	if c.ForwardDiameter <= 0 {
		c.ForwardDiameter = 2.75
	}
	if c.SidewaysDiameter <= 0 {
		c.SidewaysDiameter = 2.75
	}
	if c.HoldKp == 0 && c.HoldKi == 0 && c.HoldKd == 0 {
		c.HoldKp, c.HoldKd = 8, 0.6
	}
	return c
}

// Pose is the ground-truth robot pose: inches, and degrees clockwise from +Y.
type Pose struct {
	X, Y, Heading float64
}

type side struct {
	volts   float64
	stopped bool
	mode    motor.BrakeMode
	vel     float64 // inches/s
	travel  float64 // inches
	hold    *pidctrl.PIDController
}

// Drivetrain integrates the model lazily whenever it is read or commanded.
type Drivetrain struct {
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	last        time.Time
	left, right side
	x, y, theta float64 // theta in radians, clockwise from +Y
	fwd, lat    float64 // tracker travel in inches
	fwdZero     float64
	latZero     float64
}

// Option customizes a Drivetrain.
type Option func(*Drivetrain)

// WithClock replaces the wall clock, so tests can advance time by hand.
func WithClock(now func() time.Time) Option {
	return func(d *Drivetrain) { d.now = now }
}

// New returns a drivetrain at rest at the origin facing 0°.
func New(cfg Config, opts ...Option) *Drivetrain {
	d := &Drivetrain{cfg: cfg.withDefaults(), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	d.last = d.now()
	d.left.stopped, d.right.stopped = true, true
	debug.Verbose("Simulated drivetrain: %+v", d.cfg)
	return d
}

// advance integrates up to the current time. Caller holds mu.
func (d *Drivetrain) advance() {
	now := d.now()
	for !d.last.Add(step).After(now) {
		d.integrate(step.Seconds())
		d.last = d.last.Add(step)
	}
}

func (d *Drivetrain) integrate(dt float64) {
	d.updateSide(&d.left, dt)
	d.updateSide(&d.right, dt)

	v := (d.left.vel + d.right.vel) / 2
	omega := (d.left.vel - d.right.vel) / d.cfg.TrackWidth

	mid := d.theta + omega*dt/2
	d.x += v * dt * math.Sin(mid)
	d.y += v * dt * math.Cos(mid)
	d.theta += omega * dt

	d.fwd += (v - omega*d.cfg.ForwardOffset) * dt
	d.lat += -omega * d.cfg.SidewaysOffset * dt
}

func (d *Drivetrain) updateSide(s *side, dt float64) {
	target := d.cfg.KV * s.volts
	tau := d.cfg.Tau.Seconds()
	if s.stopped {
		switch s.mode {
		case motor.Coast:
			target, tau = 0, d.cfg.CoastTau.Seconds()
		case motor.Brake:
			target, tau = 0, tau/2
		case motor.Hold:
			volts := s.hold.UpdateDuration(s.travel, time.Duration(dt*float64(time.Second)))
			target = d.cfg.KV * volts
		}
	}
	k := math.Min(dt/tau, 1)
	s.vel += (target - s.vel) * k
	s.travel += s.vel * dt
}

func (d *Drivetrain) spin(s *side, volts float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	s.volts = math.Max(-motor.MaxVolts, math.Min(motor.MaxVolts, volts))
	s.stopped = false
}

func (d *Drivetrain) stop(s *side, mode motor.BrakeMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	if s.stopped && s.mode == mode {
		return
	}
	s.volts = 0
	s.stopped = true
	s.mode = mode
	if mode == motor.Hold {
		s.hold = pidctrl.NewPIDController(d.cfg.HoldKp, d.cfg.HoldKi, d.cfg.HoldKd).
			SetOutputLimits(-motor.MaxVolts, motor.MaxVolts).
			Set(s.travel)
		// Prime the derivative so the first sample does not kick.
		s.hold.UpdateDuration(s.travel, 0)
	}
}

// Left returns the left side motor group.
func (d *Drivetrain) Left() motor.Group { return &sideMotor{d: d, s: &d.left} }

// Right returns the right side motor group.
func (d *Drivetrain) Right() motor.Group { return &sideMotor{d: d, s: &d.right} }

// Forward returns the forward tracking wheel.
func (d *Drivetrain) Forward() *Encoder {
	return &Encoder{d: d, travel: func() float64 { return d.fwd - d.fwdZero }, reset: func() { d.fwdZero = d.fwd }, diameter: d.cfg.ForwardDiameter}
}

// Sideways returns the sideways tracking wheel (positive = rightward).
func (d *Drivetrain) Sideways() *Encoder {
	return &Encoder{d: d, travel: func() float64 { return d.lat - d.latZero }, reset: func() { d.latZero = d.lat }, diameter: d.cfg.SidewaysDiameter}
}

// Rotation implements sensor.Heading: cumulative degrees, clockwise positive.
func (d *Drivetrain) Rotation() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	return d.theta * 180 / math.Pi
}

// Truth returns the ground-truth pose, heading in [0,360).
func (d *Drivetrain) Truth() Pose {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	h := math.Mod(d.theta*180/math.Pi, 360)
	if h < 0 {
		h += 360
	}
	return Pose{X: d.x, Y: d.y, Heading: h}
}

// Place teleports the robot and zeroes its motion.
func (d *Drivetrain) Place(x, y, heading float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	d.x, d.y = x, y
	d.theta = heading * math.Pi / 180
	d.left.vel, d.right.vel = 0, 0
}

// Velocity returns the side velocities in inches/s.
func (d *Drivetrain) Velocity() (left, right float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	return d.left.vel, d.right.vel
}

type sideMotor struct {
	d *Drivetrain
	s *side
}

func (m *sideMotor) Spin(volts float64) error {
	m.d.spin(m.s, volts)
	return nil
}

func (m *sideMotor) Stop(mode motor.BrakeMode) error {
	m.d.stop(m.s, mode)
	return nil
}

// Encoder is a simulated tracking wheel reporting sensor degrees.
type Encoder struct {
	d        *Drivetrain
	travel   func() float64
	reset    func()
	diameter float64
}

// Position implements sensor.Rotation.
func (e *Encoder) Position() float64 {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	e.d.advance()
	return e.travel() / (math.Pi * e.diameter) * 360
}

// ResetPosition implements sensor.Rotation.
func (e *Encoder) ResetPosition() {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	e.d.advance()
	e.reset()
}
