package motion

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/godrive/internal/logic/geometry"
)

// ErrInvalidParams is returned when a per-motion override is out of range.
var ErrInvalidParams = errors.New("invalid motion parameters")

// Params is the snapshot a motion runs with. It starts from the family's
// tuned constants and is frozen once the motion starts.
type Params struct {
	Direction         geometry.Direction
	AngleOffset       float64
	MinVoltage        float64
	MaxVoltage        float64
	HeadingMaxVoltage float64
	SettleError       float64
	SettleTime        time.Duration
	Timeout           time.Duration
	Lead              float64
	Setback           float64
	Lookahead         float64
	Wait              bool

	heading    float64
	hasHeading bool
}

// Option overrides one field of Params.
type Option func(*Params)

// WithHeading holds a fixed heading during a distance drive.
func WithHeading(deg float64) Option {
	return func(p *Params) { p.heading, p.hasHeading = deg, true }
}

// WithDirection forces the turn direction.
func WithDirection(d geometry.Direction) Option {
	return func(p *Params) { p.Direction = d }
}

// WithAngleOffset points a given side of the robot at the target
// (180 faces away).
func WithAngleOffset(deg float64) Option {
	return func(p *Params) { p.AngleOffset = deg }
}

// WithMinVoltage sets the output floor; nonzero chains into the next motion.
func WithMinVoltage(v float64) Option {
	return func(p *Params) { p.MinVoltage = v }
}

// WithMaxVoltage caps the primary output.
func WithMaxVoltage(v float64) Option {
	return func(p *Params) { p.MaxVoltage = v }
}

// WithHeadingMaxVoltage caps the heading correction.
func WithHeadingMaxVoltage(v float64) Option {
	return func(p *Params) { p.HeadingMaxVoltage = v }
}

// WithSettleError sets the settle band.
func WithSettleError(e float64) Option {
	return func(p *Params) { p.SettleError = e }
}

// WithSettleTime sets the dwell time inside the settle band.
func WithSettleTime(d time.Duration) Option {
	return func(p *Params) { p.SettleTime = d }
}

// WithTimeout bounds the motion. 0 never times out.
func WithTimeout(d time.Duration) Option {
	return func(p *Params) { p.Timeout = d }
}

// WithLead sets the boomerang carrot lead.
func WithLead(l float64) Option {
	return func(p *Params) { p.Lead = l }
}

// WithSetback sets the boomerang carrot setback in inches.
func WithSetback(s float64) Option {
	return func(p *Params) { p.Setback = s }
}

// WithLookahead sets the pure pursuit lookahead in inches.
func WithLookahead(d float64) Option {
	return func(p *Params) { p.Lookahead = d }
}

// NoWait returns as soon as the motion starts.
func NoWait() Option {
	return func(p *Params) { p.Wait = false }
}

func newParams(f Family, t Tuning, opts []Option) (Params, error) {
	p := Params{
		MinVoltage:        f.MinVoltage,
		MaxVoltage:        f.MaxVoltage,
		HeadingMaxVoltage: t.Heading.MaxVoltage,
		SettleError:       f.SettleError,
		SettleTime:        f.SettleTime,
		Timeout:           f.Timeout,
		Lead:              t.BoomerangLead,
		Setback:           t.BoomerangSetback,
		Lookahead:         t.LookaheadDistance,
		Wait:              true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.validate(); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return p, nil
}

func (p Params) validate() error {
	f := Family{
		MinVoltage: p.MinVoltage, MaxVoltage: p.MaxVoltage,
		SettleError: p.SettleError, SettleTime: p.SettleTime, Timeout: p.Timeout,
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if err := validVoltage("heading max voltage", p.HeadingMaxVoltage); err != nil {
		return err
	}
	if p.Lead < 0 || p.Setback < 0 {
		return fmt.Errorf("lead and setback must be >= 0, got %v and %v", p.Lead, p.Setback)
	}
	if p.Lookahead <= 0 {
		return fmt.Errorf("lookahead must be > 0, got %v", p.Lookahead)
	}
	return nil
}
