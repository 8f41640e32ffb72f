package main

import (
	"fmt"

	"github.com/pthm-cable/army/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name    string  // e.g. "MELEE.cohesion"
	Unit    int     // index into cfg.Units
	Field   string  // separation | alignment | cohesion
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64
}

// ParamVector holds the set of tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

var weightFields = []string{"separation", "alignment", "cohesion"}

// Weight bounds. config.Validate rejects weights that are not positive.
const (
	minWeight = 0.01
	maxWeight = 5
)

// NewParamVector creates one separation, alignment and cohesion weight per
// unit type, defaulting to the values in cfg.
func NewParamVector(cfg *config.Config) *ParamVector {
	pv := &ParamVector{}
	for i, u := range cfg.Units {
		for _, f := range weightFields {
			pv.Specs = append(pv.Specs, ParamSpec{
				Name:    fmt.Sprintf("%s.%s", u.Name, f),
				Unit:    i,
				Field:   f,
				Min:     minWeight,
				Max:     maxWeight,
				Default: min(max(weight(&cfg.Units[i].Boids, f), minWeight), maxWeight),
			})
		}
	}
	return pv
}

func weight(b *config.BoidsConfig, field string) float64 {
	switch field {
	case "separation":
		return b.Separation
	case "alignment":
		return b.Alignment
	default:
		return b.Cohesion
	}
}

func setWeight(b *config.BoidsConfig, field string, v float64) {
	switch field {
	case "separation":
		b.Separation = v
	case "alignment":
		b.Alignment = v
	default:
		b.Cohesion = v
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes clamped parameter values into cfg.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)
	for i, spec := range pv.Specs {
		setWeight(&cfg.Units[spec.Unit].Boids, spec.Field, clamped[i])
	}
}

// ExtractFromConfig reads the current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = weight(&cfg.Units[spec.Unit].Boids, spec.Field)
	}
	return v
}
