package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}

	if cfg.Swarm.Count != 1000 {
		t.Errorf("Swarm.Count = %d, want 1000", cfg.Swarm.Count)
	}
	if len(cfg.Units) != 3 {
		t.Fatalf("len(Units) = %d, want 3", len(cfg.Units))
	}
	if cfg.Derived.CellSize != 20 {
		t.Errorf("Derived.CellSize = %v, want 20", cfg.Derived.CellSize)
	}
	if cfg.Derived.TickDuration != time.Second/60 {
		t.Errorf("Derived.TickDuration = %v, want %v", cfg.Derived.TickDuration, time.Second/60)
	}
	if got := cfg.Derived.UnitIndex["TANK"]; got != 1 {
		t.Errorf("UnitIndex[TANK] = %d, want 1", got)
	}
	if got := cfg.Units[2].Boids.PerceptionRadius; got != 20 {
		t.Errorf("SUPPORT perception radius = %v, want 20", got)
	}
	if got := cfg.Units[0].BoneScales["Foot"]; got != [3]float64{2, 1.5, 2} {
		t.Errorf("MELEE Foot bone scale = %v, want [2 1.5 2]", got)
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swarm.yaml")
	overlay := "swarm:\n  count: 250\nsolver:\n  update: sequential\n"
	if err := os.WriteFile(path, []byte(overlay), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Swarm.Count != 250 {
		t.Errorf("Swarm.Count = %d, want 250", cfg.Swarm.Count)
	}
	if cfg.Solver.Update != UpdateSequential {
		t.Errorf("Solver.Update = %q, want %q", cfg.Solver.Update, UpdateSequential)
	}
	// Untouched fields keep their defaults.
	if cfg.Swarm.Seed != 42 {
		t.Errorf("Swarm.Seed = %d, want 42", cfg.Swarm.Seed)
	}
	if len(cfg.Units) != 3 {
		t.Errorf("len(Units) = %d, want 3", len(cfg.Units))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded, want error")
	}
}

func TestDerivedCellSizeFromPerception(t *testing.T) {
	cfg := Default()
	cfg.Grid.CellSize = 0
	cfg.Recompute()
	if cfg.Derived.CellSize != 20 {
		t.Errorf("Derived.CellSize = %v, want 20 (largest perception radius)", cfg.Derived.CellSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"zero count", func(c *Config) { c.Swarm.Count = 0 }, "swarm.count"},
		{"negative count", func(c *Config) { c.Swarm.Count = -5 }, "swarm.count"},
		{"ratios short", func(c *Config) { c.Units[0].Ratio = 0.5 }, "sum to 1"},
		{"ratios long", func(c *Config) { c.Units[1].Ratio = 0.3 }, "sum to 1"},
		{"negative ratio", func(c *Config) {
			c.Units[0].Ratio = 1.0
			c.Units[1].Ratio = -0.2
			c.Units[2].Ratio = 0.2
		}, "ratio must not be negative"},
		{"zero max speed", func(c *Config) { c.Units[1].Boids.MaxSpeed = 0 }, "boids.max_speed"},
		{"negative radius", func(c *Config) { c.Units[2].Boids.PerceptionRadius = -1 }, "boids.perception_radius"},
		{"zero scale", func(c *Config) { c.Units[0].Scale = 0 }, "scale must be positive"},
		{"duplicate name", func(c *Config) { c.Units[1].Name = c.Units[0].Name }, "duplicate name"},
		{"no units", func(c *Config) { c.Units = nil }, "at least one unit"},
		{"bad update", func(c *Config) { c.Solver.Update = "random" }, "solver.update"},
		{"zero tick rate", func(c *Config) { c.Clock.TickRate = 0 }, "clock.tick_rate"},
		{"sub-nanosecond tick", func(c *Config) { c.Clock.TickRate = 2_000_000_000 }, "rounds to zero"},
		{"negative cell", func(c *Config) { c.Grid.CellSize = -1 }, "grid.cell_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			cfg.Recompute()

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("errors.Is(err, ErrInvalid) = false for %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidateRatioTolerance(t *testing.T) {
	cfg := Default()
	cfg.Units[0].Ratio = 0.6 + 1e-9
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil for rounding noise", err)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Swarm.Count = 77
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Swarm.Count != 77 {
		t.Errorf("Swarm.Count = %d, want 77", got.Swarm.Count)
	}
}
