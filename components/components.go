// Package components defines ECS components for one swarm agent.
package components

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/army/units"
)

// Position is an agent's world position. Y stays on the ground plane.
type Position struct {
	r3.Vec
}

// Velocity is an agent's displacement per tick.
type Velocity struct {
	r3.Vec
}

// Acceleration holds the steering result of the last tick.
type Acceleration struct {
	r3.Vec
}

// Heading is the facing angle about +Y. Yaw 0 faces +Z.
type Heading struct {
	Yaw float64
}

// Unit references the agent's profile.
type Unit struct {
	Type units.TypeID
}

// RenderSlot is the agent's fixed position in its type's instance buffer.
type RenderSlot struct {
	Type  units.TypeID
	Index int32
}
