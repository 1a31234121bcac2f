package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/godrive/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// pwmCycle is the number of clock ticks in one PWM period.
const pwmCycle = 1024

// RPiDriver drives the Raspberry Pi header through go-rpio's memory map.
// Motor and encoder goroutines share it, so pin access is serialized.
type RPiDriver struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
}

// NewRPiRealDriver maps /dev/gpiomem. Hardware PWM needs /dev/mem, so the
// motor backend has to run as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Verbose("Mapping GPIO memory (go-rpio)")
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio memory: %w (not a Raspberry Pi?)", err)
	}
	return &RPiDriver{pins: make(map[int]rpio.Pin)}, nil
}

// configure switches num into mode. Callers hold r.mu.
func (r *RPiDriver) configure(num int, mode PinMode) (rpio.Pin, error) {
	p := rpio.Pin(num)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	case PWM:
		p.Pwm()
	default:
		return p, fmt.Errorf("pin %d: unknown mode %d", num, mode)
	}
	r.pins[num] = p
	return p, nil
}

// lookup returns a configured pin, configuring it as fallback on first use.
// Callers hold r.mu.
func (r *RPiDriver) lookup(num int, fallback PinMode) (rpio.Pin, error) {
	if p, ok := r.pins[num]; ok {
		return p, nil
	}
	return r.configure(num, fallback)
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.configure(pin, mode)
	return err
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.lookup(pin, Output)
	if err != nil {
		return err
	}
	p.Write(levelState(level))
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.lookup(pin, Input)
	if err != nil {
		return Low, err
	}
	return p.Read() == rpio.High, nil
}

func (r *RPiDriver) SetupPWM(pin int, freq int) error {
	debug.GPIO("SetupPWM", pin, freq)
	if freq <= 0 {
		return fmt.Errorf("pwm frequency must be > 0, got %d", freq)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.configure(pin, PWM)
	if err != nil {
		return err
	}
	p.Freq(freq * pwmCycle)
	p.DutyCycle(0, pwmCycle)
	return nil
}

func (r *RPiDriver) WritePWM(pin int, duty float64) error {
	debug.GPIO("WritePWM", pin, duty)
	if duty < 0 || duty > 1 {
		return fmt.Errorf("duty cycle %.3f out of [0,1]", duty)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d not configured for PWM", pin)
	}
	p.DutyCycle(uint32(duty*pwmCycle+0.5), pwmCycle)
	return nil
}

// Close floats every pin it touched, then unmaps GPIO memory.
func (r *RPiDriver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	debug.Trace("Releasing %d GPIO pins", len(r.pins))
	for _, p := range r.pins {
		p.Input()
	}
	r.pins = make(map[int]rpio.Pin)
	return rpio.Close()
}

func levelState(l Level) rpio.State {
	if l == High {
		return rpio.High
	}
	return rpio.Low
}
