// Package renderer defines the boundary between the swarm and whatever draws it:
// per-type instance buckets receiving one transform per agent each tick.
package renderer

import (
	"image/color"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/army/units"
)

// Transform places one instance: translate to Position, rotate Yaw about +Y,
// scale uniformly by Scale.
type Transform struct {
	Position r3.Vec
	Yaw      float64
	Scale    float64
}

// Matrix returns T·R_y·S as a column-major 4x4 matrix.
func (t Transform) Matrix() [16]float32 {
	s, c := math.Sincos(t.Yaw)
	k := t.Scale
	return [16]float32{
		float32(k * c), 0, float32(-k * s), 0,
		0, float32(k), 0, 0,
		float32(k * s), 0, float32(k * c), 0,
		float32(t.Position.X), float32(t.Position.Y), float32(t.Position.Z), 1,
	}
}

// PartMatrix returns the matrix that maps a unit primitive centered at the
// origin onto a part of the given local center and size, then through t.
func (t Transform) PartMatrix(center, size r3.Vec) [16]float32 {
	m := t.Matrix()
	for i := 0; i < 3; i++ {
		m[i] *= float32(size.X)
		m[4+i] *= float32(size.Y)
		m[8+i] *= float32(size.Z)
	}
	w := t.Apply(center)
	m[12], m[13], m[14] = float32(w.X), float32(w.Y), float32(w.Z)
	return m
}

// Apply maps a point from instance-local space to world space.
func (t Transform) Apply(local r3.Vec) r3.Vec {
	s, c := math.Sincos(t.Yaw)
	l := r3.Scale(t.Scale, local)
	return r3.Add(t.Position, r3.Vec{
		X: l.X*c + l.Z*s,
		Y: l.Y,
		Z: -l.X*s + l.Z*c,
	})
}

// Forward returns the unit facing direction on the XZ plane.
func (t Transform) Forward() r3.Vec {
	s, c := math.Sincos(t.Yaw)
	return r3.Vec{X: s, Z: c}
}

// Model is what a ModelSource supplies for one unit type.
type Model struct {
	Name  string
	Mesh  any // opaque handle owned by the ModelSource
	Color color.RGBA
}

// ModelSource supplies the renderable model of each unit type, once.
type ModelSource interface {
	Model(p *units.Profile) (Model, error)
}

// Bucket describes one type's instance buffer.
type Bucket struct {
	Type     units.TypeID
	Name     string
	Capacity int
	Model    Model
}

// Renderer receives per-agent transforms in per-type buckets.
// SetTransform is called for every agent each tick, then MarkDirty once per type.
type Renderer interface {
	Allocate(buckets []Bucket) error
	SetTransform(t units.TypeID, index int, tr Transform)
	MarkDirty(t units.TypeID)
}

// FrameEnder is implemented by renderers that want a callback after all
// buckets of a tick have been written.
type FrameEnder interface {
	EndFrame(tick uint64, simTime time.Duration)
}

// ProfileModels is a ModelSource that supplies each profile's color and no mesh.
type ProfileModels struct{}

// Model implements ModelSource.
func (ProfileModels) Model(p *units.Profile) (Model, error) {
	return Model{Name: p.Name, Color: p.Color}, nil
}
