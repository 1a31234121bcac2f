// Package gpio abstracts the pin header the motor drivers and encoders sit
// on, with a go-rpio backend for the Pi and an in-memory mock.
package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/godrive/internal/debug"
)

// Level is a digital pin state.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode selects how a pin is driven.
type PinMode int

const (
	Input PinMode = iota
	Output
	PWM
)

// Driver is the pin-level surface used by H-bridges and quadrature
// encoders.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	// SetupPWM configures a hardware PWM channel at freq Hz.
	SetupPWM(pin int, freq int) error
	// WritePWM sets the duty cycle in [0, 1].
	WritePWM(pin int, duty float64) error
	Close() error
}

// NewDriver returns the mock when mock is set, the Pi driver otherwise.
func NewDriver(mock bool) (Driver, error) {
	if !mock {
		return NewRPiRealDriver()
	}
	debug.Info("GPIO backend: mock, no pins are driven")
	return NewMockDriver(), nil
}

// MockDriver keeps pin state in memory. Levels written to a pin are read
// back, which lets tests step an encoder by hand.
type MockDriver struct {
	mu    sync.Mutex
	level map[int]Level
	duty  map[int]float64
}

func NewMockDriver() *MockDriver {
	return &MockDriver{
		level: make(map[int]Level),
		duty:  make(map[int]float64),
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level[pin], nil
}

func (m *MockDriver) SetupPWM(pin int, freq int) error {
	if freq <= 0 {
		return fmt.Errorf("pwm frequency must be > 0, got %d", freq)
	}
	debug.GPIO("SetupPWM", pin, freq)
	return nil
}

func (m *MockDriver) WritePWM(pin int, duty float64) error {
	if duty < 0 || duty > 1 {
		return fmt.Errorf("duty cycle %.3f out of [0,1]", duty)
	}
	debug.GPIO("WritePWM", pin, duty)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duty[pin] = duty
	return nil
}

// Duty returns the last duty cycle written to pin.
func (m *MockDriver) Duty(pin int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duty[pin]
}

func (m *MockDriver) Close() error { return nil }
