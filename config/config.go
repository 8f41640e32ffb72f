// Package config provides configuration loading and validation for the swarm.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// ratioTolerance is the slack allowed when the unit ratios are summed.
const ratioTolerance = 1e-6

// Update modes accepted by SolverConfig.Update.
const (
	UpdateSnapshot   = "snapshot"
	UpdateSequential = "sequential"
)

// Config holds all swarm configuration parameters.
type Config struct {
	Swarm     SwarmConfig     `yaml:"swarm"`
	Grid      GridConfig      `yaml:"grid"`
	Solver    SolverConfig    `yaml:"solver"`
	Clock     ClockConfig     `yaml:"clock"`
	Screen    ScreenConfig    `yaml:"screen"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Stream    StreamConfig    `yaml:"stream"`
	Units     []UnitConfig    `yaml:"units"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SwarmConfig holds population and spawn parameters.
type SwarmConfig struct {
	Count         int     `yaml:"count"`
	Seed          int64   `yaml:"seed"`
	SpawnExtent   float64 `yaml:"spawn_extent"`   // Side of the square spawn area centered at origin
	CenteringPull float64 `yaml:"centering_pull"` // Acceleration toward origin per unit of distance
}

// GridConfig holds spatial grid parameters.
type GridConfig struct {
	CellSize float64 `yaml:"cell_size"` // 0 = largest perception radius
}

// SolverConfig holds flocking solver parameters.
type SolverConfig struct {
	Update            string  `yaml:"update"`             // snapshot | sequential
	Workers           int     `yaml:"workers"`            // 0 = GOMAXPROCS
	ParallelThreshold int     `yaml:"parallel_threshold"` // Below this agent count, steer single-threaded
	HeadingEpsilon    float64 `yaml:"heading_epsilon"`    // Minimum speed for heading updates
}

// ClockConfig holds fixed-step clock parameters.
type ClockConfig struct {
	TickRate   int `yaml:"tick_rate"`    // Ticks per second
	MaxCatchUp int `yaml:"max_catch_up"` // Max ticks run by one Advance call
}

// ScreenConfig holds display settings for the viewer.
type ScreenConfig struct {
	Width          int        `yaml:"width"`
	Height         int        `yaml:"height"`
	TargetFPS      int        `yaml:"target_fps"`
	CameraPosition [3]float64 `yaml:"camera_position"`
	FOV            float64    `yaml:"fov"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow int `yaml:"stats_window"` // Ticks per stats window
	PerfWindow  int `yaml:"perf_window"`  // Ticks kept by the perf collector
}

// StreamConfig holds websocket frame stream parameters.
type StreamConfig struct {
	Every      int `yaml:"every"`       // Send one frame every N ticks
	MaxClients int `yaml:"max_clients"` // 0 = unlimited
}

// UnitConfig defines one unit type.
type UnitConfig struct {
	Name       string                `yaml:"name"`
	Ratio      float64               `yaml:"ratio"`
	Scale      float64               `yaml:"scale"`
	Speed      float64               `yaml:"speed"` // Nominal display speed (gait)
	Color      string                `yaml:"color"` // #rrggbb
	BoneScales map[string][3]float64 `yaml:"bone_scales"`
	Boids      BoidsConfig           `yaml:"boids"`
}

// BoidsConfig holds per-type flocking weights and limits.
type BoidsConfig struct {
	Separation       float64 `yaml:"separation"`
	Alignment        float64 `yaml:"alignment"`
	Cohesion         float64 `yaml:"cohesion"`
	MaxSpeed         float64 `yaml:"max_speed"`
	MaxForce         float64 `yaml:"max_force"`
	PerceptionRadius float64 `yaml:"perception_radius"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	TickDuration time.Duration    // 1/TickRate
	CellSize     float64          // Grid.CellSize, or the largest perception radius when unset
	UnitIndex    map[string]uint8 // name -> index for unit lookup
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file; a units list replaces the defaults.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	return cfg, nil
}

// Default returns the embedded defaults. It panics if they do not parse.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Recompute refreshes derived values after fields were changed in code.
func (c *Config) Recompute() {
	c.computeDerived()
}

func (c *Config) computeDerived() {
	c.Derived.TickDuration = 0
	if c.Clock.TickRate > 0 {
		c.Derived.TickDuration = time.Second / time.Duration(c.Clock.TickRate)
	}

	c.Derived.CellSize = c.Grid.CellSize
	if c.Derived.CellSize == 0 {
		for _, u := range c.Units {
			c.Derived.CellSize = math.Max(c.Derived.CellSize, u.Boids.PerceptionRadius)
		}
	}

	c.Derived.UnitIndex = make(map[string]uint8, len(c.Units))
	for i, u := range c.Units {
		c.Derived.UnitIndex[u.Name] = uint8(i)
	}
}

// Validate reports every problem that would prevent building a swarm.
// All returned errors wrap ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	if c.Swarm.Count <= 0 {
		bad("swarm.count must be positive, got %d", c.Swarm.Count)
	}
	if c.Swarm.SpawnExtent < 0 {
		bad("swarm.spawn_extent must not be negative, got %g", c.Swarm.SpawnExtent)
	}
	if c.Swarm.CenteringPull < 0 {
		bad("swarm.centering_pull must not be negative, got %g", c.Swarm.CenteringPull)
	}
	if c.Derived.CellSize <= 0 {
		bad("grid.cell_size must be positive, got %g", c.Derived.CellSize)
	}
	switch c.Solver.Update {
	case UpdateSnapshot, UpdateSequential:
	default:
		bad("solver.update must be %q or %q, got %q", UpdateSnapshot, UpdateSequential, c.Solver.Update)
	}
	if c.Solver.Workers < 0 {
		bad("solver.workers must not be negative, got %d", c.Solver.Workers)
	}
	if c.Solver.HeadingEpsilon < 0 {
		bad("solver.heading_epsilon must not be negative, got %g", c.Solver.HeadingEpsilon)
	}
	if c.Clock.TickRate <= 0 {
		bad("clock.tick_rate must be positive, got %d", c.Clock.TickRate)
	} else if c.Derived.TickDuration <= 0 {
		bad("clock.tick_rate %d is too high: tick duration rounds to zero", c.Clock.TickRate)
	}
	if c.Clock.MaxCatchUp <= 0 {
		bad("clock.max_catch_up must be positive, got %d", c.Clock.MaxCatchUp)
	}

	if len(c.Units) == 0 {
		bad("at least one unit type is required")
	}
	if len(c.Units) > math.MaxUint8+1 {
		bad("at most %d unit types are supported, got %d", math.MaxUint8+1, len(c.Units))
	}

	ratios := make([]float64, len(c.Units))
	seen := make(map[string]bool, len(c.Units))
	for i, u := range c.Units {
		ratios[i] = u.Ratio
		if u.Name == "" {
			bad("units[%d]: name is required", i)
		} else if seen[u.Name] {
			bad("units[%d]: duplicate name %q", i, u.Name)
		}
		seen[u.Name] = true

		if u.Ratio < 0 {
			bad("unit %q: ratio must not be negative, got %g", u.Name, u.Ratio)
		}
		if u.Scale <= 0 {
			bad("unit %q: scale must be positive, got %g", u.Name, u.Scale)
		}
		b := u.Boids
		for _, p := range []struct {
			name string
			v    float64
		}{
			{"separation", b.Separation},
			{"alignment", b.Alignment},
			{"cohesion", b.Cohesion},
			{"max_speed", b.MaxSpeed},
			{"max_force", b.MaxForce},
			{"perception_radius", b.PerceptionRadius},
		} {
			if !(p.v > 0) {
				bad("unit %q: boids.%s must be positive, got %g", u.Name, p.name, p.v)
			}
		}
	}
	if len(ratios) > 0 {
		if sum := floats.Sum(ratios); math.Abs(sum-1) > ratioTolerance {
			bad("unit ratios must sum to 1, got %g", sum)
		}
	}

	return errors.Join(errs...)
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
