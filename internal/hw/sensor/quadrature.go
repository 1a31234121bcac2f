package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/godrive/internal/debug"
	"github.com/cjeanneret/godrive/internal/hw/gpio"
)

// QuadratureConfig holds the wiring of one quadrature encoder.
type QuadratureConfig struct {
	PinA         int
	PinB         int
	CountsPerRev int // edges per revolution (4x decoding)
	Reversed     bool
}

// transitions maps (prev<<2 | cur) to a count delta. Invalid jumps count 0.
var transitions = [16]int{
	0, -1, 1, 0,
	1, 0, 0, -1,
	-1, 0, 0, 1,
	0, 1, -1, 0,
}

// Quadrature decodes an A/B encoder by polling two GPIO inputs.
type Quadrature struct {
	gpio gpio.Driver
	cfg  QuadratureConfig

	mu    sync.Mutex
	count int64
	state int
}

// NewQuadrature configures the encoder pins as inputs.
func NewQuadrature(g gpio.Driver, cfg QuadratureConfig) (*Quadrature, error) {
	if cfg.CountsPerRev <= 0 {
		return nil, fmt.Errorf("encoder counts per rev must be > 0, got %d", cfg.CountsPerRev)
	}
	if err := g.SetupPin(cfg.PinA, gpio.Input); err != nil {
		return nil, fmt.Errorf("encoder pin A: %w", err)
	}
	if err := g.SetupPin(cfg.PinB, gpio.Input); err != nil {
		return nil, fmt.Errorf("encoder pin B: %w", err)
	}
	q := &Quadrature{gpio: g, cfg: cfg}
	st, err := q.read()
	if err != nil {
		return nil, err
	}
	q.state = st
	return q, nil
}

func (q *Quadrature) read() (int, error) {
	a, err := q.gpio.ReadPin(q.cfg.PinA)
	if err != nil {
		return 0, err
	}
	b, err := q.gpio.ReadPin(q.cfg.PinB)
	if err != nil {
		return 0, err
	}
	st := 0
	if a == gpio.High {
		st |= 2
	}
	if b == gpio.High {
		st |= 1
	}
	return st, nil
}

// Poll samples the pins once and updates the count.
func (q *Quadrature) Poll() error {
	st, err := q.read()
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.count += int64(transitions[q.state<<2|st])
	q.state = st
	q.mu.Unlock()
	return nil
}

// Run polls every period until ctx is done.
func (q *Quadrature) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.Poll(); err != nil {
				debug.Error(fmt.Errorf("encoder %d/%d: %w", q.cfg.PinA, q.cfg.PinB, err))
			}
		}
	}
}

// Position returns cumulative sensor degrees.
func (q *Quadrature) Position() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	deg := float64(q.count) * 360 / float64(q.cfg.CountsPerRev)
	if q.cfg.Reversed {
		return -deg
	}
	return deg
}

// ResetPosition zeroes the count.
func (q *Quadrature) ResetPosition() {
	q.mu.Lock()
	q.count = 0
	q.mu.Unlock()
}
