package renderer

import (
	"fmt"
	"time"

	"github.com/pthm-cable/army/units"
)

// Buffers is an in-memory Renderer holding one fixed-capacity transform slice
// per bucket. Adapters embed it and read the slices when drawing.
// It is not safe for concurrent use.
type Buffers struct {
	buckets    []Bucket
	transforms [][]Transform
	dirty      []bool
	versions   []uint64
}

// Allocate implements Renderer. Bucket types must be dense from 0.
func (b *Buffers) Allocate(buckets []Bucket) error {
	b.buckets = make([]Bucket, len(buckets))
	b.transforms = make([][]Transform, len(buckets))
	b.dirty = make([]bool, len(buckets))
	b.versions = make([]uint64, len(buckets))
	for i, bk := range buckets {
		if int(bk.Type) != i {
			return fmt.Errorf("bucket %d has type %d, want %d", i, bk.Type, i)
		}
		if bk.Capacity < 0 {
			return fmt.Errorf("bucket %q has negative capacity %d", bk.Name, bk.Capacity)
		}
		b.buckets[i] = bk
		b.transforms[i] = make([]Transform, bk.Capacity)
	}
	return nil
}

// SetTransform implements Renderer. Out-of-range writes are ignored.
func (b *Buffers) SetTransform(t units.TypeID, index int, tr Transform) {
	if int(t) >= len(b.transforms) {
		return
	}
	buf := b.transforms[t]
	if index < 0 || index >= len(buf) {
		return
	}
	buf[index] = tr
}

// MarkDirty implements Renderer.
func (b *Buffers) MarkDirty(t units.TypeID) {
	if int(t) >= len(b.dirty) {
		return
	}
	b.dirty[t] = true
	b.versions[t]++
}

// Buckets returns the allocated buckets.
func (b *Buffers) Buckets() []Bucket {
	return b.buckets
}

// Transforms returns the instance buffer of one type. The slice is owned by Buffers.
func (b *Buffers) Transforms(t units.TypeID) []Transform {
	if int(t) >= len(b.transforms) {
		return nil
	}
	return b.transforms[t]
}

// TakeDirty reports whether the type was marked dirty since the last call,
// and clears the flag.
func (b *Buffers) TakeDirty(t units.TypeID) bool {
	if int(t) >= len(b.dirty) {
		return false
	}
	d := b.dirty[t]
	b.dirty[t] = false
	return d
}

// Version returns how many times the type was marked dirty.
func (b *Buffers) Version(t units.TypeID) uint64 {
	if int(t) >= len(b.versions) {
		return 0
	}
	return b.versions[t]
}

type multi []Renderer

// Multi fans every call out to all renderers, in order.
func Multi(rs ...Renderer) Renderer {
	return multi(rs)
}

func (m multi) Allocate(buckets []Bucket) error {
	for _, r := range m {
		if err := r.Allocate(buckets); err != nil {
			return err
		}
	}
	return nil
}

func (m multi) SetTransform(t units.TypeID, index int, tr Transform) {
	for _, r := range m {
		r.SetTransform(t, index, tr)
	}
}

func (m multi) MarkDirty(t units.TypeID) {
	for _, r := range m {
		r.MarkDirty(t)
	}
}

func (m multi) EndFrame(tick uint64, simTime time.Duration) {
	for _, r := range m {
		if fe, ok := r.(FrameEnder); ok {
			fe.EndFrame(tick, simTime)
		}
	}
}
