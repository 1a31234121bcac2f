// Package pid implements the feedback controller used by every motion loop.
package pid

import (
	"fmt"
	"math"
	"time"
)

// Config holds gains and exit conditions for one controller.
type Config struct {
	Kp          float64
	Ki          float64
	Kd          float64
	StartI      float64       // integral accumulates once |error| <= StartI
	SettleError float64       // band that counts as "at target"
	SettleTime  time.Duration // dwell inside the band before Settled
	Timeout     time.Duration // 0 = never time out
}

// Validate rejects exit conditions that could never settle.
func (c Config) Validate() error {
	if c.SettleError <= 0 || math.IsNaN(c.SettleError) {
		return fmt.Errorf("settle error must be > 0, got %v", c.SettleError)
	}
	if c.SettleTime < 0 {
		return fmt.Errorf("settle time must be >= 0, got %v", c.SettleTime)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}
	if c.StartI < 0 {
		return fmt.Errorf("starti must be >= 0, got %v", c.StartI)
	}
	return nil
}

// Clock supplies the current time. Tests swap it for a manual clock.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(p *Controller) { p.clock = c }
}

// Controller is a PID loop with integral gating and settle detection.
// It is built fresh for every motion and is not safe for concurrent use.
type Controller struct {
	cfg   Config
	clock Clock

	start       time.Time
	settleStart time.Time
	inBand      bool

	integral  float64
	prevError float64
	firstTick bool
	output    float64
}

// New creates a controller seeded with the motion's initial error.
func New(initialError float64, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg,
		clock:     wallClock{},
		prevError: initialError,
		firstTick: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.start = c.clock.Now()
	return c
}

// Compute feeds one error sample and returns the unclamped output.
func (c *Controller) Compute(err float64) float64 {
	if math.Abs(err) <= c.cfg.StartI {
		c.integral += err
	}
	if (err > 0 && c.prevError < 0) || (err < 0 && c.prevError > 0) {
		c.integral = 0
	}

	derivative := 0.0
	if !c.firstTick {
		derivative = err - c.prevError
	}
	c.firstTick = false

	c.output = c.cfg.Kp*err + c.cfg.Ki*c.integral + c.cfg.Kd*derivative
	c.prevError = err

	if math.Abs(err) < c.cfg.SettleError {
		if !c.inBand {
			c.inBand = true
			c.settleStart = c.clock.Now()
		}
	} else {
		c.inBand = false
	}
	return c.output
}

// TimedOut reports whether the controller outlived its timeout.
func (c *Controller) TimedOut() bool {
	return c.cfg.Timeout > 0 && c.clock.Now().Sub(c.start) >= c.cfg.Timeout
}

// IsSettled reports whether the error stayed inside the settle band for
// SettleTime, or the timeout elapsed.
func (c *Controller) IsSettled() bool {
	if c.TimedOut() {
		return true
	}
	return c.inBand && c.clock.Now().Sub(c.settleStart) >= c.cfg.SettleTime
}

// Output returns the last computed output.
func (c *Controller) Output() float64 { return c.output }

// Error returns the last error fed to Compute (or the seed).
func (c *Controller) Error() float64 { return c.prevError }

// Elapsed returns the time since construction.
func (c *Controller) Elapsed() time.Duration { return c.clock.Now().Sub(c.start) }
