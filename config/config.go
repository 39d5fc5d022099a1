// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Device names accepted in gpu.device.
const (
	DeviceLanes  = "lanes"
	DeviceOpenGL = "opengl"
)

// Config holds all simulation configuration parameters.
type Config struct {
	Screen     ScreenConfig     `yaml:"screen"`
	Simulation SimulationConfig `yaml:"simulation"`
	Agents     AgentsConfig     `yaml:"agents"`
	Trail      TrailConfig      `yaml:"trail"`
	GPU        GPUConfig        `yaml:"gpu"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Stream     StreamConfig     `yaml:"stream"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	TargetFPS  int  `yaml:"target_fps"`
	Fullscreen bool `yaml:"fullscreen"`
}

// SimulationConfig holds the fixed shape of a run.
type SimulationConfig struct {
	ResX       int     `yaml:"res_x"`       // Trail field width in cells
	ResY       int     `yaml:"res_y"`       // Trail field height in cells
	AgentCount int     `yaml:"agent_count"` // Fixed for the lifetime of the run
	Seed       int64   `yaml:"seed"`        // 0 = time-based
	DT         float64 `yaml:"dt"`          // Fixed step for headless runs (seconds)
	MaxDT      float64 `yaml:"max_dt"`      // Wall-clock step clamp (0 = unclamped)
}

// AgentsConfig holds agent movement and sensing parameters.
// Distances are in normalized field units, angles in radians, rates per second.
type AgentsConfig struct {
	Speed         float64 `yaml:"speed"`
	TurnSpeed     float64 `yaml:"turn_speed"`
	SensorSpan    float64 `yaml:"sensor_span"`  // Angular offset of the side sensors
	SensorRange   float64 `yaml:"sensor_range"` // Forward distance to each sensor
	SensorSize    int     `yaml:"sensor_size"`  // Sample window edge in cells
	DepositAmount float64 `yaml:"deposit_amount"`
}

// TrailConfig holds trail field dynamics.
type TrailConfig struct {
	DiffuseRate   float64 `yaml:"diffuse_rate"`
	EvaporateRate float64 `yaml:"evaporate_rate"`
}

// GPUConfig selects the parallel device and its lane-group shapes.
// Group sizes are written into the kernel sources before compilation; the
// device reports the width it actually compiled.
type GPUConfig struct {
	Device         string `yaml:"device"`
	AgentGroupSize int    `yaml:"agent_group_size"`
	TrailGroupX    int    `yaml:"trail_group_x"`
	TrailGroupY    int    `yaml:"trail_group_y"`
	Workers        int    `yaml:"workers"` // lanes device goroutines (0 = GOMAXPROCS)
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // Seconds of sim time per stats window
	PerfWindow  int     `yaml:"perf_window"`  // Ticks averaged by the perf collector
}

// StreamConfig holds websocket snapshot streaming settings.
type StreamConfig struct {
	Addr        string `yaml:"addr"`          // Empty disables streaming
	EveryNTicks int    `yaml:"every_n_ticks"` // Publish one frame every N ticks
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32          float32
	Speed32       float32
	TurnSpeed32   float32
	SensorSpan32  float32
	SensorRange32 float32
	Deposit32     float32
	Diffuse32     float32
	Evaporate32   float32
	Cells         int // ResX * ResY
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are broken: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used. The result is validated.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Validate rejects configurations the simulation cannot start with.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	nonNegative := func(name string, v float64) {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%s must be a finite non-negative number, got %v", name, v))
		}
	}

	positive("simulation.res_x", c.Simulation.ResX)
	positive("simulation.res_y", c.Simulation.ResY)
	if c.Simulation.AgentCount < 0 {
		errs = append(errs, fmt.Errorf("simulation.agent_count must not be negative, got %d", c.Simulation.AgentCount))
	}
	nonNegative("simulation.dt", c.Simulation.DT)
	nonNegative("simulation.max_dt", c.Simulation.MaxDT)

	nonNegative("agents.speed", c.Agents.Speed)
	nonNegative("agents.turn_speed", c.Agents.TurnSpeed)
	nonNegative("agents.sensor_span", c.Agents.SensorSpan)
	nonNegative("agents.sensor_range", c.Agents.SensorRange)
	nonNegative("agents.deposit_amount", c.Agents.DepositAmount)
	positive("agents.sensor_size", c.Agents.SensorSize)

	nonNegative("trail.diffuse_rate", c.Trail.DiffuseRate)
	nonNegative("trail.evaporate_rate", c.Trail.EvaporateRate)

	switch c.GPU.Device {
	case DeviceLanes, DeviceOpenGL:
	default:
		errs = append(errs, fmt.Errorf("gpu.device must be %q or %q, got %q", DeviceLanes, DeviceOpenGL, c.GPU.Device))
	}
	positive("gpu.agent_group_size", c.GPU.AgentGroupSize)
	positive("gpu.trail_group_x", c.GPU.TrailGroupX)
	positive("gpu.trail_group_y", c.GPU.TrailGroupY)
	if c.GPU.Workers < 0 {
		errs = append(errs, fmt.Errorf("gpu.workers must not be negative, got %d", c.GPU.Workers))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.Simulation.DT)
	c.Derived.Speed32 = float32(c.Agents.Speed)
	c.Derived.TurnSpeed32 = float32(c.Agents.TurnSpeed)
	c.Derived.SensorSpan32 = float32(c.Agents.SensorSpan)
	c.Derived.SensorRange32 = float32(c.Agents.SensorRange)
	c.Derived.Deposit32 = float32(c.Agents.DepositAmount)
	c.Derived.Diffuse32 = float32(c.Trail.DiffuseRate)
	c.Derived.Evaporate32 = float32(c.Trail.EvaporateRate)
	c.Derived.Cells = c.Simulation.ResX * c.Simulation.ResY
}

// Refresh re-validates and recomputes derived values after fields were
// changed in code (tests, the optimizer).
func (c *Config) Refresh() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
