// Package units holds the immutable per-type unit profiles and the ratio sampler
// used to assign types at spawn.
package units

import (
	"fmt"
	"image/color"
	"maps"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/pthm-cable/army/config"
)

// TypeID indexes a profile in a Table. IDs are dense from 0 in config order.
type TypeID uint8

// Boids holds the flocking weights and limits of one unit type.
type Boids struct {
	Separation       float64
	Alignment        float64
	Cohesion         float64
	MaxSpeed         float64
	MaxForce         float64
	PerceptionRadius float64
}

// Profile is the constant description of a unit type.
type Profile struct {
	ID         TypeID
	Name       string
	Color      color.RGBA
	Scale      float64 // Uniform render scale
	Speed      float64 // Nominal display speed, drives the walk gait
	Ratio      float64
	BoneScales map[string][3]float64
	Boids      Boids
}

// BoneScale returns the scale for a named body part, or (1, 1, 1).
func (p *Profile) BoneScale(part string) [3]float64 {
	if s, ok := p.BoneScales[part]; ok {
		return s
	}
	return [3]float64{1, 1, 1}
}

// Table is the read-only set of profiles shared by all agents.
type Table struct {
	profiles []Profile
	cdf      []float64 // cumulative ratios, last entry forced to 1
}

// NewTable builds a table from unit configs. Ratios are expected to be validated
// already; colors are parsed here.
func NewTable(cfgs []config.UnitConfig) (*Table, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("%w: no unit types", config.ErrInvalid)
	}

	t := &Table{
		profiles: make([]Profile, len(cfgs)),
		cdf:      make([]float64, len(cfgs)),
	}
	sum := 0.0
	for i, u := range cfgs {
		c, err := colorful.Hex(u.Color)
		if err != nil {
			return nil, fmt.Errorf("%w: unit %q: color %q: %v", config.ErrInvalid, u.Name, u.Color, err)
		}
		r, g, b := c.RGB255()

		t.profiles[i] = Profile{
			ID:         TypeID(i),
			Name:       u.Name,
			Color:      color.RGBA{R: r, G: g, B: b, A: 255},
			Scale:      u.Scale,
			Speed:      u.Speed,
			Ratio:      u.Ratio,
			BoneScales: maps.Clone(u.BoneScales),
			Boids: Boids{
				Separation:       u.Boids.Separation,
				Alignment:        u.Boids.Alignment,
				Cohesion:         u.Boids.Cohesion,
				MaxSpeed:         u.Boids.MaxSpeed,
				MaxForce:         u.Boids.MaxForce,
				PerceptionRadius: u.Boids.PerceptionRadius,
			},
		}
		sum += u.Ratio
		t.cdf[i] = sum
	}
	t.cdf[len(t.cdf)-1] = 1

	return t, nil
}

// Len returns the number of unit types.
func (t *Table) Len() int {
	return len(t.profiles)
}

// Valid reports whether id names a profile in the table.
func (t *Table) Valid(id TypeID) bool {
	return int(id) < len(t.profiles)
}

// Get returns the profile for id. The returned profile must not be modified.
func (t *Table) Get(id TypeID) *Profile {
	return &t.profiles[id]
}

// Profiles returns a copy of all profiles in ID order.
func (t *Table) Profiles() []Profile {
	out := make([]Profile, len(t.profiles))
	copy(out, t.profiles)
	return out
}

// Pick maps r in [0, 1) to a type through the cumulative ratio distribution:
// the first type whose cumulative ratio is >= r. Types with a zero ratio are
// never picked.
func (t *Table) Pick(r float64) TypeID {
	last := 0
	for i, c := range t.cdf {
		if t.profiles[i].Ratio <= 0 {
			continue
		}
		if r <= c {
			return TypeID(i)
		}
		last = i
	}
	return TypeID(last)
}

// MaxPerceptionRadius returns the largest perception radius in the table.
func (t *Table) MaxPerceptionRadius() float64 {
	m := 0.0
	for i := range t.profiles {
		m = max(m, t.profiles[i].Boids.PerceptionRadius)
	}
	return m
}
