package swarm

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/army/components"
	"github.com/pthm-cable/army/units"
)

// Agent is a value copy of one agent's components.
type Agent struct {
	Position     r3.Vec
	Velocity     r3.Vec
	Acceleration r3.Vec
	Heading      float64
	Type         units.TypeID
	Slot         int
}

// WorkingSet is the contiguous per-tick copy of the store the solver reads and writes.
// Index i in every slice is agent i.
type WorkingSet struct {
	Pos     []r3.Vec
	Vel     []r3.Vec
	Acc     []r3.Vec
	Heading []float64
	Types   []units.TypeID
}

func newWorkingSet(n int) WorkingSet {
	return WorkingSet{
		Pos:     make([]r3.Vec, n),
		Vel:     make([]r3.Vec, n),
		Acc:     make([]r3.Vec, n),
		Heading: make([]float64, n),
		Types:   make([]units.TypeID, n),
	}
}

// Len returns the number of agents in the set.
func (ws *WorkingSet) Len() int {
	return len(ws.Pos)
}

// Store owns the agents. Agents live in an ECS world; entities are also kept
// in creation order so every agent has a stable dense index.
// The population is fixed once the simulation starts.
type Store struct {
	world *ecs.World

	mapper *ecs.Map6[
		components.Position,
		components.Velocity,
		components.Acceleration,
		components.Heading,
		components.Unit,
		components.RenderSlot,
	]
	filter *ecs.Filter6[
		components.Position,
		components.Velocity,
		components.Acceleration,
		components.Heading,
		components.Unit,
		components.RenderSlot,
	]

	entities []ecs.Entity
	counts   []int // agents per type, also the next free render slot
}

// NewStore creates an empty store for up to numTypes unit types.
func NewStore(capacity, numTypes int) *Store {
	world := ecs.NewWorld()
	return &Store{
		world: world,
		mapper: ecs.NewMap6[
			components.Position,
			components.Velocity,
			components.Acceleration,
			components.Heading,
			components.Unit,
			components.RenderSlot,
		](world),
		filter: ecs.NewFilter6[
			components.Position,
			components.Velocity,
			components.Acceleration,
			components.Heading,
			components.Unit,
			components.RenderSlot,
		](world),
		entities: make([]ecs.Entity, 0, capacity),
		counts:   make([]int, numTypes),
	}
}

// Add creates an agent and returns its dense index. The render slot is assigned
// from the running per-type count; a.Slot is ignored.
func (s *Store) Add(a Agent) int {
	slot := s.counts[a.Type]
	s.counts[a.Type]++

	pos := components.Position{Vec: a.Position}
	vel := components.Velocity{Vec: a.Velocity}
	acc := components.Acceleration{Vec: a.Acceleration}
	head := components.Heading{Yaw: a.Heading}
	unit := components.Unit{Type: a.Type}
	rs := components.RenderSlot{Type: a.Type, Index: int32(slot)}

	e := s.mapper.NewEntity(&pos, &vel, &acc, &head, &unit, &rs)
	s.entities = append(s.entities, e)
	return len(s.entities) - 1
}

// Len returns the number of agents.
func (s *Store) Len() int {
	return len(s.entities)
}

// Get returns a copy of agent i.
func (s *Store) Get(i int) Agent {
	pos, vel, acc, head, unit, rs := s.mapper.Get(s.entities[i])
	return Agent{
		Position:     pos.Vec,
		Velocity:     vel.Vec,
		Acceleration: acc.Vec,
		Heading:      head.Yaw,
		Type:         unit.Type,
		Slot:         int(rs.Index),
	}
}

// TypeCounts returns the number of agents of each type, indexed by TypeID.
func (s *Store) TypeCounts() []int {
	out := make([]int, len(s.counts))
	copy(out, s.counts)
	return out
}

// Load copies the store into ws. ws must have been sized with Len agents.
func (s *Store) Load(ws *WorkingSet) {
	for i, e := range s.entities {
		pos, vel, acc, head, unit, _ := s.mapper.Get(e)
		ws.Pos[i] = pos.Vec
		ws.Vel[i] = vel.Vec
		ws.Acc[i] = acc.Vec
		ws.Heading[i] = head.Yaw
		ws.Types[i] = unit.Type
	}
}

// Commit writes the mutable fields of ws back into the store.
// Types and render slots never change.
func (s *Store) Commit(ws *WorkingSet) {
	for i, e := range s.entities {
		pos, vel, acc, head, _, _ := s.mapper.Get(e)
		pos.Vec = ws.Pos[i]
		vel.Vec = ws.Vel[i]
		acc.Vec = ws.Acc[i]
		head.Yaw = ws.Heading[i]
	}
}

// Each calls fn for every agent with its live components, in storage order.
// fn must not keep the pointers.
func (s *Store) Each(fn func(pos *components.Position, head *components.Heading, slot *components.RenderSlot)) {
	query := s.filter.Query()
	for query.Next() {
		pos, _, _, head, _, rs := query.Get()
		fn(pos, head, rs)
	}
}
