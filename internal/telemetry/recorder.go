package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/godrive/internal/debug"
	"go.uber.org/multierr"
)

// Sink receives every sample a Recorder takes.
type Sink interface {
	Write(Sample) error
	Close() error
}

// Recorder samples a Source at a fixed period, keeps the samples for
// plotting and forwards them to sinks and subscribers.
type Recorder struct {
	src    Source
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	start   time.Time
	samples []Sample
	sinks   []Sink
	subs    map[chan Sample]struct{}
}

// NewRecorder returns a recorder for src. A zero period samples every 20ms.
func NewRecorder(src Source, period time.Duration) *Recorder {
	if period <= 0 {
		period = 20 * time.Millisecond
	}
	return &Recorder{
		src:    src,
		period: period,
		now:    time.Now,
		subs:   make(map[chan Sample]struct{}),
	}
}

// AddSink attaches a sink. The recorder closes it in Close.
func (r *Recorder) AddSink(s Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, s)
	r.mu.Unlock()
}

// Subscribe returns a channel of live samples and its cleanup function.
// Slow subscribers miss samples.
func (r *Recorder) Subscribe() (<-chan Sample, func()) {
	ch := make(chan Sample, 64)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, ch)
			r.mu.Unlock()
			close(ch)
		})
	}
}

// Reset drops the kept samples and restarts the clock.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.samples = nil
	r.start = time.Time{}
	r.mu.Unlock()
}

// Samples returns a copy of the kept samples.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.samples...)
}

// Record takes one sample now. Sink failures are returned combined; the
// sample is kept either way.
func (r *Recorder) Record() (Sample, error) {
	now := r.now()
	r.mu.Lock()
	if r.start.IsZero() {
		r.start = now
	}
	elapsed := now.Sub(r.start)
	r.mu.Unlock()

	s := Take(r.src, elapsed)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	var err error
	for _, sink := range r.sinks {
		err = multierr.Append(err, sink.Write(s))
	}
	for ch := range r.subs {
		select {
		case ch <- s:
		default:
		}
	}
	return s, err
}

// Run samples until ctx is done.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		if _, err := r.Record(); err != nil {
			debug.Error(err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close closes every sink.
func (r *Recorder) Close() error {
	r.mu.Lock()
	sinks := r.sinks
	r.sinks = nil
	r.mu.Unlock()

	var err error
	for _, s := range sinks {
		err = multierr.Append(err, s.Close())
	}
	if err != nil {
		return fmt.Errorf("telemetry: closing sinks: %w", err)
	}
	return nil
}
