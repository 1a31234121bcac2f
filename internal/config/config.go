package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cjeanneret/godrive/internal/logic/geometry"
	"github.com/cjeanneret/godrive/internal/logic/motion"
	"github.com/cjeanneret/godrive/internal/logic/routine"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 1 << 20

// Backends selectable under hardware.backend.
const (
	BackendSim  = "sim"
	BackendGPIO = "gpio"
)

// TrackerConfig describes one tracking wheel.
type TrackerConfig struct {
	Diameter       float64 `yaml:"diameter"`        // inches
	GearRatio      float64 `yaml:"gear_ratio"`      // wheel turns per sensor turn (0 = 1)
	CenterDistance float64 `yaml:"center_distance"` // inches from the rotation center
}

// ChassisConfig holds the drivetrain geometry and loop periods.
type ChassisConfig struct {
	TrackWidth      float64        `yaml:"track_width"`    // inches between drive wheels
	WheelDiameter   float64        `yaml:"wheel_diameter"` // drive wheels, for the wheel-heading fallback
	ForwardTracker  TrackerConfig  `yaml:"forward_tracker"`
	SidewaysTracker *TrackerConfig `yaml:"sideways_tracker,omitempty"` // optional
	HeadingScale    float64        `yaml:"heading_scale"`              // sensor degrees per real turn (0 = 360)
	TickMs          int            `yaml:"tick_ms"`                    // motion loop period
	OdomPeriodMs    int            `yaml:"odom_period_ms"`             // odometry update period
}

// FamilyConfig holds one family of tuned constants.
type FamilyConfig struct {
	MinVoltage   float64 `yaml:"min_voltage"`
	MaxVoltage   float64 `yaml:"max_voltage"`
	Kp           float64 `yaml:"kp"`
	Ki           float64 `yaml:"ki"`
	Kd           float64 `yaml:"kd"`
	StartI       float64 `yaml:"starti"`
	SettleError  float64 `yaml:"settle_error"`
	SettleTimeMs int     `yaml:"settle_time_ms"`
	TimeoutMs    int     `yaml:"timeout_ms"` // 0 = never time out
}

// TuningConfig mirrors motion.Tuning with millisecond durations.
type TuningConfig struct {
	Drive             FamilyConfig `yaml:"drive"`
	Heading           FamilyConfig `yaml:"heading"`
	Turn              FamilyConfig `yaml:"turn"`
	Swing             FamilyConfig `yaml:"swing"`
	BoomerangLead     float64      `yaml:"boomerang_lead"`
	BoomerangSetback  float64      `yaml:"boomerang_setback"`
	LookaheadDistance float64      `yaml:"lookahead_distance"`
}

// MirrorConfig holds the field-side mirroring toggles.
type MirrorConfig struct {
	Angles bool `yaml:"angles"`
	X      bool `yaml:"x"`
	Y      bool `yaml:"y"`
}

// MotorConfig is one H-bridge channel (BCM pins).
type MotorConfig struct {
	PWMPin   int  `yaml:"pwm_pin"`
	DirAPin  int  `yaml:"dir_a_pin"`
	DirBPin  int  `yaml:"dir_b_pin"`
	Reversed bool `yaml:"reversed"`
}

// EncoderConfig is one quadrature encoder (BCM pins).
type EncoderConfig struct {
	PinA         int  `yaml:"pin_a"`
	PinB         int  `yaml:"pin_b"`
	CountsPerRev int  `yaml:"counts_per_rev"`
	Reversed     bool `yaml:"reversed"`
}

// SimConfig tunes the simulated drivetrain. Zero fields take the
// simulator's defaults.
type SimConfig struct {
	KV         float64 `yaml:"kv"`           // inches/s per volt
	TauMs      int     `yaml:"tau_ms"`       // drive response time constant
	CoastTauMs int     `yaml:"coast_tau_ms"` // free-wheel decay
}

// HardwareConfig selects and wires the backend.
type HardwareConfig struct {
	Backend         string         `yaml:"backend"`   // "sim" or "gpio"
	MockGPIO        bool           `yaml:"mock_gpio"` // gpio backend on a mock driver (dev/test)
	PWMFrequency    int            `yaml:"pwm_frequency"`
	EncoderPollUs   int            `yaml:"encoder_poll_us"`
	LeftMotor       MotorConfig    `yaml:"left_motor"`
	RightMotor      MotorConfig    `yaml:"right_motor"`
	ForwardEncoder  EncoderConfig  `yaml:"forward_encoder"`
	SidewaysEncoder *EncoderConfig `yaml:"sideways_encoder,omitempty"`
	LeftEncoder     EncoderConfig  `yaml:"left_encoder"`  // heading from drive encoders
	RightEncoder    EncoderConfig  `yaml:"right_encoder"` // heading from drive encoders
	Sim             SimConfig      `yaml:"sim"`
}

// TelemetryConfig controls sampling and the optional sinks.
type TelemetryConfig struct {
	PeriodMs   int    `yaml:"period_ms"`
	CSVPath    string `yaml:"csv_path"`    // empty = no file
	SerialPort string `yaml:"serial_port"` // empty = no serial stream
	Baud       int    `yaml:"baud"`
	PlotDir    string `yaml:"plot_dir"` // empty = no plots
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	Port       int `yaml:"port"`        // web server port
}

// Config aggregates all application configuration.
type Config struct {
	Chassis   ChassisConfig     `yaml:"chassis"`
	Tuning    TuningConfig      `yaml:"tuning"`
	Mirror    MirrorConfig      `yaml:"mirror"`
	Hardware  HardwareConfig    `yaml:"hardware"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
	Programs  []routine.Program `yaml:"programs,omitempty"`
	Defaults  DefaultsConfig    `yaml:"defaults"`
}

func familyConfig(f motion.Family) FamilyConfig {
	return FamilyConfig{
		MinVoltage: f.MinVoltage, MaxVoltage: f.MaxVoltage,
		Kp: f.Kp, Ki: f.Ki, Kd: f.Kd, StartI: f.StartI,
		SettleError:  f.SettleError,
		SettleTimeMs: int(f.SettleTime / time.Millisecond),
		TimeoutMs:    int(f.Timeout / time.Millisecond),
	}
}

// Default returns the configuration used for every key a file omits.
func Default() Config {
	t := motion.DefaultTuning()
	return Config{
		Chassis: ChassisConfig{
			TrackWidth:     12,
			WheelDiameter:  3.25,
			ForwardTracker: TrackerConfig{Diameter: 2.75, GearRatio: 1},
			HeadingScale:   360,
			TickMs:         10,
			OdomPeriodMs:   10,
		},
		Tuning: TuningConfig{
			Drive:             familyConfig(t.Drive),
			Heading:           familyConfig(t.Heading),
			Turn:              familyConfig(t.Turn),
			Swing:             familyConfig(t.Swing),
			BoomerangLead:     t.BoomerangLead,
			BoomerangSetback:  t.BoomerangSetback,
			LookaheadDistance: t.LookaheadDistance,
		},
		Hardware: HardwareConfig{
			Backend:       BackendSim,
			MockGPIO:      true,
			PWMFrequency:  20000,
			EncoderPollUs: 200,
		},
		Telemetry: TelemetryConfig{PeriodMs: 20, Baud: 115200},
		Defaults:  DefaultsConfig{Port: 8080},
	}
}

// ValidateConfigPath accepts only .yaml files directly inside a
// directory named configs.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Ext(abs) != ".yaml" {
		return fmt.Errorf("config file must have a .yaml extension: %s", path)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be inside a configs/ directory: %s", path)
	}
	return nil
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validTracker(name string, t TrackerConfig) error {
	if t.Diameter <= 0 {
		return fmt.Errorf("chassis.%s.diameter must be > 0, got %v", name, t.Diameter)
	}
	if t.GearRatio < 0 {
		return fmt.Errorf("chassis.%s.gear_ratio must be >= 0, got %v", name, t.GearRatio)
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	ch := c.Chassis
	if ch.TrackWidth <= 0 {
		return fmt.Errorf("chassis.track_width must be > 0, got %v", ch.TrackWidth)
	}
	if err := validTracker("forward_tracker", ch.ForwardTracker); err != nil {
		return err
	}
	if ch.SidewaysTracker != nil {
		if err := validTracker("sideways_tracker", *ch.SidewaysTracker); err != nil {
			return err
		}
	}
	if ch.HeadingScale <= 0 {
		return fmt.Errorf("chassis.heading_scale must be > 0, got %v", ch.HeadingScale)
	}
	if ch.TickMs <= 0 || ch.OdomPeriodMs <= 0 {
		return fmt.Errorf("chassis.tick_ms and odom_period_ms must be > 0")
	}
	for name, f := range map[string]FamilyConfig{
		"drive": c.Tuning.Drive, "turn": c.Tuning.Turn, "swing": c.Tuning.Swing, "heading": c.Tuning.Heading,
	} {
		if f.SettleTimeMs < 0 || f.TimeoutMs < 0 {
			return fmt.Errorf("tuning.%s: settle_time_ms and timeout_ms must be >= 0", name)
		}
	}
	if err := c.MotionTuning().Validate(); err != nil {
		return fmt.Errorf("tuning: %w", err)
	}

	switch c.Hardware.Backend {
	case BackendSim:
	case BackendGPIO:
		if c.Chassis.WheelDiameter <= 0 {
			return fmt.Errorf("chassis.wheel_diameter must be > 0 for the gpio backend")
		}
		if c.Hardware.EncoderPollUs <= 0 {
			return fmt.Errorf("hardware.encoder_poll_us must be > 0, got %d", c.Hardware.EncoderPollUs)
		}
		for name, e := range map[string]EncoderConfig{
			"forward_encoder": c.Hardware.ForwardEncoder,
			"left_encoder":    c.Hardware.LeftEncoder,
			"right_encoder":   c.Hardware.RightEncoder,
		} {
			if e.CountsPerRev <= 0 {
				return fmt.Errorf("hardware.%s.counts_per_rev must be > 0", name)
			}
		}
		if c.Hardware.SidewaysEncoder != nil && c.Hardware.SidewaysEncoder.CountsPerRev <= 0 {
			return fmt.Errorf("hardware.sideways_encoder.counts_per_rev must be > 0")
		}
	default:
		return fmt.Errorf("hardware.backend must be %q or %q, got %q", BackendSim, BackendGPIO, c.Hardware.Backend)
	}

	if c.Telemetry.PeriodMs <= 0 {
		return fmt.Errorf("telemetry.period_ms must be > 0, got %d", c.Telemetry.PeriodMs)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.Defaults.Port <= 0 || c.Defaults.Port > 65535 {
		return fmt.Errorf("defaults.port must be between 1 and 65535, got %d", c.Defaults.Port)
	}
	for _, p := range c.Programs {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (f FamilyConfig) family() motion.Family {
	return motion.Family{
		MinVoltage: f.MinVoltage, MaxVoltage: f.MaxVoltage,
		Kp: f.Kp, Ki: f.Ki, Kd: f.Kd, StartI: f.StartI,
		SettleError: f.SettleError,
		SettleTime:  f.SettleTime(),
		Timeout:     f.Timeout(),
	}
}

// SettleTime returns the settle dwell.
func (f FamilyConfig) SettleTime() time.Duration { return ms(f.SettleTimeMs) }

// Timeout returns the motion timeout (0 = never).
func (f FamilyConfig) Timeout() time.Duration { return ms(f.TimeoutMs) }

// MotionTuning converts the tuning section for motion.New.
func (c *Config) MotionTuning() motion.Tuning {
	t := c.Tuning
	return motion.Tuning{
		Drive:             t.Drive.family(),
		Heading:           t.Heading.family(),
		Turn:              t.Turn.family(),
		Swing:             t.Swing.family(),
		BoomerangLead:     t.BoomerangLead,
		BoomerangSetback:  t.BoomerangSetback,
		LookaheadDistance: t.LookaheadDistance,
	}
}

// MirrorToggles returns the mirroring section as geometry.Mirror.
func (c *Config) MirrorToggles() geometry.Mirror {
	return geometry.Mirror{Angles: c.Mirror.Angles, X: c.Mirror.X, Y: c.Mirror.Y}
}

// TickPeriod returns the motion loop period.
func (c *Config) TickPeriod() time.Duration { return ms(c.Chassis.TickMs) }

// OdomPeriod returns the odometry update period.
func (c *Config) OdomPeriod() time.Duration { return ms(c.Chassis.OdomPeriodMs) }

// TelemetryPeriod returns the sampling period.
func (c *Config) TelemetryPeriod() time.Duration { return ms(c.Telemetry.PeriodMs) }

// EncoderPoll returns the quadrature polling period.
func (c *Config) EncoderPoll() time.Duration {
	return time.Duration(c.Hardware.EncoderPollUs) * time.Microsecond
}
