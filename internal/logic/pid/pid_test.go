package pid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// manualClock advances only when told to.
type manualClock struct {
	now time.Time
}

func (m *manualClock) Now() time.Time { return m.now }

func (m *manualClock) Advance(d time.Duration) { m.now = m.now.Add(d) }

const tick = 10 * time.Millisecond

func testConfig() Config {
	return Config{
		Kp:          1.5,
		Ki:          0.1,
		Kd:          2,
		StartI:      5,
		SettleError: 1,
		SettleTime:  50 * time.Millisecond,
		Timeout:     time.Second,
	}
}

func TestCompute_FirstTickHasNoDerivative(t *testing.T) {
	clk := &manualClock{now: time.Unix(0, 0)}
	c := New(20, testConfig(), WithClock(clk))

	// Far from target: P only.
	assert.InDelta(t, 1.5*20, c.Compute(20), 1e-9)
	// Second tick: P + D on the first difference.
	assert.InDelta(t, 1.5*18+2*(18-20), c.Compute(18), 1e-9)
}

func TestCompute_IntegralGatedByStartI(t *testing.T) {
	cfg := Config{Ki: 1, StartI: 5, SettleError: 0.1}
	c := New(10, cfg)

	c.Compute(10)
	assert.Equal(t, 0.0, c.Output(), "no integral outside starti")
	c.Compute(5)
	assert.Equal(t, 5.0, c.Output(), "|error| == starti accumulates")
	c.Compute(2)
	assert.Equal(t, 7.0, c.Output())
	// Sign change clears the accumulator.
	c.Compute(-1)
	assert.Equal(t, 0.0, c.Output())
}

func TestIsSettled_ExactTick(t *testing.T) {
	clk := &manualClock{now: time.Unix(0, 0)}
	cfg := testConfig()
	c := New(10, cfg, WithClock(clk))

	errs := []float64{10, 5, 0.5, 0.4, 0.3, 0.2, 0.1, 0.05, 0.01}
	settledAt := -1
	for i, e := range errs {
		clk.Advance(tick)
		c.Compute(e)
		if c.IsSettled() {
			settledAt = i
			break
		}
	}
	// In band from index 2; 50ms later is index 7.
	assert.Equal(t, 7, settledAt)
}

func TestIsSettled_LeavingBandResetsTimer(t *testing.T) {
	clk := &manualClock{now: time.Unix(0, 0)}
	c := New(10, testConfig(), WithClock(clk))

	seq := []float64{0.5, 0.5, 0.5, 3, 0.5, 0.5, 0.5, 0.5, 0.5}
	for i, e := range seq {
		clk.Advance(tick)
		c.Compute(e)
		if i < len(seq)-1 {
			assert.False(t, c.IsSettled(), "tick %d", i)
		}
	}
	clk.Advance(tick)
	c.Compute(0.5)
	assert.True(t, c.IsSettled())
}

func TestIsSettled_ZeroSettleTime(t *testing.T) {
	cfg := testConfig()
	cfg.SettleTime = 0
	c := New(10, cfg, WithClock(&manualClock{}))

	c.Compute(4)
	assert.False(t, c.IsSettled())
	c.Compute(0.9)
	assert.True(t, c.IsSettled())
}

func TestTimeout(t *testing.T) {
	clk := &manualClock{now: time.Unix(100, 0)}
	c := New(50, testConfig(), WithClock(clk))

	clk.Advance(999 * time.Millisecond)
	c.Compute(50)
	assert.False(t, c.IsSettled())
	clk.Advance(time.Millisecond)
	assert.True(t, c.TimedOut())
	assert.True(t, c.IsSettled(), "timeout overrides error")
}

func TestTimeout_ZeroNeverExpires(t *testing.T) {
	clk := &manualClock{now: time.Unix(0, 0)}
	cfg := testConfig()
	cfg.Timeout = 0
	c := New(50, cfg, WithClock(clk))

	clk.Advance(24 * time.Hour)
	c.Compute(50)
	assert.False(t, c.TimedOut())
	assert.False(t, c.IsSettled())
}

func TestConfig_Validate(t *testing.T) {
	good := testConfig()
	assert.NoError(t, good.Validate())

	cases := map[string]func(*Config){
		"zero settle error":    func(c *Config) { c.SettleError = 0 },
		"negative settle time": func(c *Config) { c.SettleTime = -time.Millisecond },
		"negative timeout":     func(c *Config) { c.Timeout = -time.Second },
		"negative starti":      func(c *Config) { c.StartI = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
