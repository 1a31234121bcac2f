package motion

import (
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/godrive/internal/logic/geometry"
	"github.com/cjeanneret/godrive/internal/logic/pid"
)

// Family is the tuned constants shared by one group of motions.
type Family struct {
	MinVoltage  float64       `json:"min_voltage"` // floor for chaining, 0 = stop at the end
	MaxVoltage  float64       `json:"max_voltage"`
	Kp          float64       `json:"kp"`
	Ki          float64       `json:"ki"`
	Kd          float64       `json:"kd"`
	StartI      float64       `json:"starti"`
	SettleError float64       `json:"settle_error"`
	SettleTime  time.Duration `json:"settle_time"`
	Timeout     time.Duration `json:"timeout"`
}

// Tuning holds every family plus the path-shaping constants.
type Tuning struct {
	Drive   Family `json:"drive"`
	Heading Family `json:"heading"` // only gains and MaxVoltage are used
	Turn    Family `json:"turn"`
	Swing   Family `json:"swing"`

	BoomerangLead     float64 `json:"boomerang_lead"`
	BoomerangSetback  float64 `json:"boomerang_setback"`
	LookaheadDistance float64 `json:"lookahead_distance"`
}

// DefaultTuning returns constants that settle a 12 in / 12 V drivetrain.
func DefaultTuning() Tuning {
	return Tuning{
		Drive: Family{
			MaxVoltage: 10, Kp: 1.5, Kd: 10,
			SettleError: 1.5, SettleTime: 300 * time.Millisecond, Timeout: 5 * time.Second,
		},
		Heading: Family{
			MaxVoltage: 6, Kp: 0.4, Kd: 1,
		},
		Turn: Family{
			MaxVoltage: 12, Kp: 0.4, Ki: 0.03, Kd: 3, StartI: 15,
			SettleError: 1, SettleTime: 300 * time.Millisecond, Timeout: 3 * time.Second,
		},
		Swing: Family{
			MaxVoltage: 12, Kp: 0.3, Ki: 0.001, Kd: 2, StartI: 15,
			SettleError: 1, SettleTime: 300 * time.Millisecond, Timeout: 3 * time.Second,
		},
		BoomerangLead:     0.5,
		BoomerangSetback:  2,
		LookaheadDistance: 10,
	}
}

func (f Family) pid(settleError float64, settleTime, timeout time.Duration) pid.Config {
	return pid.Config{
		Kp: f.Kp, Ki: f.Ki, Kd: f.Kd, StartI: f.StartI,
		SettleError: settleError, SettleTime: settleTime, Timeout: timeout,
	}
}

func validVoltage(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > geometry.MaxVoltage {
		return fmt.Errorf("%s must be in [0, %v], got %v", name, geometry.MaxVoltage, v)
	}
	return nil
}

// ValidateVoltages checks the voltage bounds of a family.
func (f Family) ValidateVoltages() error {
	if err := validVoltage("max voltage", f.MaxVoltage); err != nil {
		return err
	}
	if f.MaxVoltage == 0 {
		return fmt.Errorf("max voltage must be > 0")
	}
	if err := validVoltage("min voltage", f.MinVoltage); err != nil {
		return err
	}
	if f.MinVoltage > f.MaxVoltage {
		return fmt.Errorf("min voltage %v above max voltage %v", f.MinVoltage, f.MaxVoltage)
	}
	return nil
}

// ValidateExit checks the exit conditions of a family.
func (f Family) ValidateExit() error {
	return f.pid(f.SettleError, f.SettleTime, f.Timeout).Validate()
}

// Validate checks a whole family.
func (f Family) Validate() error {
	if err := f.ValidateVoltages(); err != nil {
		return err
	}
	return f.ValidateExit()
}

// Validate checks every family and path constant.
func (t Tuning) Validate() error {
	for name, f := range map[string]Family{"drive": t.Drive, "turn": t.Turn, "swing": t.Swing} {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := validVoltage("heading max voltage", t.Heading.MaxVoltage); err != nil {
		return fmt.Errorf("heading: %w", err)
	}
	if t.BoomerangLead < 0 {
		return fmt.Errorf("boomerang lead must be >= 0, got %v", t.BoomerangLead)
	}
	if t.BoomerangSetback < 0 {
		return fmt.Errorf("boomerang setback must be >= 0, got %v", t.BoomerangSetback)
	}
	if t.LookaheadDistance <= 0 {
		return fmt.Errorf("lookahead distance must be > 0, got %v", t.LookaheadDistance)
	}
	return nil
}
