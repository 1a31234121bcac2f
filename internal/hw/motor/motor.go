// Package motor drives one side of the drivetrain.
package motor

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// BrakeMode selects what a stopped motor does.
type BrakeMode int

const (
	Coast BrakeMode = iota // free-wheel
	Brake                  // short the windings
	Hold                   // actively hold position
)

func (b BrakeMode) String() string {
	switch b {
	case Brake:
		return "brake"
	case Hold:
		return "hold"
	default:
		return "coast"
	}
}

// ParseBrakeMode maps "coast", "brake" or "hold" to a BrakeMode.
func ParseBrakeMode(s string) (BrakeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coast":
		return Coast, nil
	case "brake":
		return Brake, nil
	case "", "hold":
		return Hold, nil
	}
	return Coast, fmt.Errorf("unknown brake mode %q (want coast, brake or hold)", s)
}

// MaxVolts is the supply ceiling a Spin request is clamped to.
const MaxVolts = 12.0

// Group is a set of motors on one drivetrain side commanded together.
type Group interface {
	// Spin applies a signed voltage, positive = forward.
	Spin(volts float64) error
	Stop(mode BrakeMode) error
}

// Multi fans commands out to several motors on the same side.
type Multi []Group

func (m Multi) Spin(volts float64) error {
	var err error
	for _, g := range m {
		err = multierr.Append(err, g.Spin(volts))
	}
	return err
}

func (m Multi) Stop(mode BrakeMode) error {
	var err error
	for _, g := range m {
		err = multierr.Append(err, g.Stop(mode))
	}
	return err
}
