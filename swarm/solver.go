package swarm

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/army/config"
	"github.com/pthm-cable/army/systems"
	"github.com/pthm-cable/army/units"
)

// ErrUnknownType is returned when an agent references a type missing from the table.
var ErrUnknownType = errors.New("unknown unit type")

// UpdateMode selects how agents observe each other within a tick.
type UpdateMode uint8

const (
	// Snapshot steers every agent from the previous tick's state, then commits.
	Snapshot UpdateMode = iota
	// Sequential integrates each agent in place, in index order, so later agents
	// see earlier agents' new state.
	Sequential
)

func (m UpdateMode) String() string {
	switch m {
	case Snapshot:
		return config.UpdateSnapshot
	case Sequential:
		return config.UpdateSequential
	}
	return fmt.Sprintf("UpdateMode(%d)", uint8(m))
}

// ParseUpdateMode parses a solver.update value.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch s {
	case config.UpdateSnapshot, "":
		return Snapshot, nil
	case config.UpdateSequential:
		return Sequential, nil
	}
	return 0, fmt.Errorf("%w: unknown update mode %q", config.ErrInvalid, s)
}

// StepStats counts neighbor work done by the last Steer.
type StepStats struct {
	Candidates int // indices returned by grid queries
	Neighbors  int // candidates inside the perception radius
}

// Solver runs the flocking rules over a working set.
// Per tick: Load, Rebuild, Steer, Commit. It is not safe for concurrent use.
type Solver struct {
	boids      []units.Boids // by TypeID
	grid       *systems.SpatialGrid
	ws         WorkingSet
	next       WorkingSet // snapshot mode intents
	mode       UpdateMode
	centering  float64
	headingEps float64

	pool      *workerPool
	threshold int
	stats     StepStats
}

// NewSolver creates a solver for the agents currently in store.
// Every agent's type must resolve in table.
func NewSolver(store *Store, table *units.Table, cfg *config.Config) (*Solver, error) {
	mode, err := ParseUpdateMode(cfg.Solver.Update)
	if err != nil {
		return nil, err
	}
	if cfg.Derived.CellSize <= 0 {
		return nil, fmt.Errorf("%w: cell size %g", config.ErrInvalid, cfg.Derived.CellSize)
	}

	n := store.Len()
	s := &Solver{
		boids:      make([]units.Boids, table.Len()),
		grid:       systems.NewSpatialGrid(cfg.Derived.CellSize),
		ws:         newWorkingSet(n),
		mode:       mode,
		centering:  cfg.Swarm.CenteringPull,
		headingEps: cfg.Solver.HeadingEpsilon,
		threshold:  cfg.Solver.ParallelThreshold,
	}
	for i := range s.boids {
		s.boids[i] = table.Get(units.TypeID(i)).Boids
	}

	store.Load(&s.ws)
	for i, t := range s.ws.Types {
		if !table.Valid(t) {
			return nil, fmt.Errorf("agent %d: %w %d", i, ErrUnknownType, t)
		}
	}

	if mode == Snapshot {
		s.next = newWorkingSet(n)
		copy(s.next.Types, s.ws.Types)
	}
	s.pool = newWorkerPool(cfg.Solver.Workers)
	return s, nil
}

// Mode returns the update mode.
func (s *Solver) Mode() UpdateMode {
	return s.mode
}

// Grid returns the spatial grid. It reflects the positions of the last Rebuild.
func (s *Solver) Grid() *systems.SpatialGrid {
	return s.grid
}

// WorkingSet returns the current working set. It is owned by the solver.
func (s *Solver) WorkingSet() *WorkingSet {
	return &s.ws
}

// Stats returns the neighbor counts of the last Steer.
func (s *Solver) Stats() StepStats {
	return s.stats
}

// Load copies the store into the working set.
func (s *Solver) Load(store *Store) {
	store.Load(&s.ws)
}

// Rebuild clears the grid and inserts every agent at its current position.
func (s *Solver) Rebuild() {
	s.grid.Clear()
	for i, p := range s.ws.Pos {
		s.grid.Insert(i, p)
	}
}

// Steer computes accelerations and integrates every agent.
func (s *Solver) Steer() {
	s.pool.resetStats()
	n := s.ws.Len()

	switch s.mode {
	case Sequential:
		s.steerChunk(0, n, &s.ws, &s.pool.scratches[0])
	default:
		if n < s.threshold || s.pool.numWorkers == 1 {
			s.steerChunk(0, n, &s.next, &s.pool.scratches[0])
		} else {
			s.pool.run(s, n)
		}
		// The intents become the current state.
		s.ws.Pos, s.next.Pos = s.next.Pos, s.ws.Pos
		s.ws.Vel, s.next.Vel = s.next.Vel, s.ws.Vel
		s.ws.Acc, s.next.Acc = s.next.Acc, s.ws.Acc
		s.ws.Heading, s.next.Heading = s.next.Heading, s.ws.Heading
	}

	s.stats = s.pool.collectStats()
}

// Commit writes the working set back into the store.
func (s *Solver) Commit(store *Store) {
	store.Commit(&s.ws)
}

// Close stops the worker pool.
func (s *Solver) Close() {
	s.pool.stop()
}

// steerChunk steers agents [i0, i1) reading s.ws and writing dst.
// With dst == &s.ws agents are updated in place.
func (s *Solver) steerChunk(i0, i1 int, dst *WorkingSet, sc *workerScratch) {
	src := &s.ws
	var nb systems.Neighborhood

	for i := i0; i < i1; i++ {
		pos, vel := src.Pos[i], src.Vel[i]
		b := s.boids[src.Types[i]]

		sc.neighbors = s.grid.QueryInto(sc.neighbors[:0], pos, b.PerceptionRadius)
		sc.candidates += len(sc.neighbors)

		nb.Reset()
		for _, j := range sc.neighbors {
			if nb.Add(pos, src.Pos[j], src.Vel[j], b.PerceptionRadius) {
				sc.hits++
			}
		}

		acc := nb.Forces(pos, vel, b, s.centering).Acceleration(b)
		newPos, newVel := systems.Integrate(pos, vel, acc, b.MaxSpeed)

		dst.Acc[i] = acc
		dst.Heading[i] = systems.UpdateHeading(src.Heading[i], newVel, s.headingEps)
		dst.Vel[i] = newVel
		dst.Pos[i] = newPos
	}
}
