package motor

import (
	"fmt"
	"math"

	"github.com/cjeanneret/godrive/internal/debug"
	"github.com/cjeanneret/godrive/internal/hw/gpio"
)

// Config holds the wiring of one DC motor behind an H-bridge (L298N style).
type Config struct {
	PWMPin   int  // ENA/ENB, hardware PWM (BCM)
	DirAPin  int  // IN1/IN3
	DirBPin  int  // IN2/IN4
	PWMFreq  int  // Hz. 0 = 20 kHz.
	Reversed bool // motor mounted backwards
}

// HBridge converts voltage requests into PWM duty and direction pins.
type HBridge struct {
	gpio gpio.Driver
	cfg  Config
}

// NewHBridge configures the pins and leaves the motor coasting.
func NewHBridge(g gpio.Driver, cfg Config) (*HBridge, error) {
	if cfg.PWMFreq <= 0 {
		cfg.PWMFreq = 20000
	}
	if err := g.SetupPin(cfg.DirAPin, gpio.Output); err != nil {
		return nil, fmt.Errorf("dir A pin %d: %w", cfg.DirAPin, err)
	}
	if err := g.SetupPin(cfg.DirBPin, gpio.Output); err != nil {
		return nil, fmt.Errorf("dir B pin %d: %w", cfg.DirBPin, err)
	}
	if err := g.SetupPWM(cfg.PWMPin, cfg.PWMFreq); err != nil {
		return nil, fmt.Errorf("pwm pin %d: %w", cfg.PWMPin, err)
	}

	h := &HBridge{gpio: g, cfg: cfg}
	if err := h.Stop(Coast); err != nil {
		return nil, err
	}
	return h, nil
}

// Spin applies volts, clamped to ±MaxVolts.
func (h *HBridge) Spin(volts float64) error {
	if math.IsNaN(volts) {
		return fmt.Errorf("motor on pin %d: NaN voltage", h.cfg.PWMPin)
	}
	if h.cfg.Reversed {
		volts = -volts
	}
	volts = math.Max(-MaxVolts, math.Min(MaxVolts, volts))

	a, b := gpio.High, gpio.Low
	if volts < 0 {
		a, b = gpio.Low, gpio.High
	}
	debug.Trace("HBridge pwm=%d volts=%.2f", h.cfg.PWMPin, volts)

	if err := h.setDirection(a, b); err != nil {
		return err
	}
	return h.gpio.WritePWM(h.cfg.PWMPin, math.Abs(volts)/MaxVolts)
}

// Stop coasts (both inputs low, no drive) or short-brakes (both inputs
// high, full enable). Hold has no position loop on this driver and
// short-brakes as well.
func (h *HBridge) Stop(mode BrakeMode) error {
	debug.Trace("HBridge pwm=%d stop=%s", h.cfg.PWMPin, mode)
	if mode == Coast {
		if err := h.gpio.WritePWM(h.cfg.PWMPin, 0); err != nil {
			return err
		}
		return h.setDirection(gpio.Low, gpio.Low)
	}
	if err := h.setDirection(gpio.High, gpio.High); err != nil {
		return err
	}
	return h.gpio.WritePWM(h.cfg.PWMPin, 1)
}

func (h *HBridge) setDirection(a, b gpio.Level) error {
	if err := h.gpio.WritePin(h.cfg.DirAPin, a); err != nil {
		return err
	}
	return h.gpio.WritePin(h.cfg.DirBPin, b)
}
