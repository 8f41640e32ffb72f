// Package swarm runs the flocking simulation: agent storage, the per-tick
// solver, transform publishing and the fixed-step clock.
package swarm

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/pthm-cable/army/config"
	"github.com/pthm-cable/army/renderer"
	"github.com/pthm-cable/army/telemetry"
	"github.com/pthm-cable/army/units"
)

// Options configures a Simulation beyond its config.
type Options struct {
	Seed   int64 // overrides swarm.seed when non-zero
	Logger *slog.Logger
	Perf   *telemetry.PerfCollector // created from telemetry.perf_window when nil
}

// Simulation is a fixed population of agents stepped one tick at a time.
type Simulation struct {
	cfg       *config.Config
	table     *units.Table
	store     *Store
	solver    *Solver
	publisher *Publisher
	perf      *telemetry.PerfCollector
	logger    *slog.Logger

	observers []Observer

	seed     int64
	tick     uint64
	lastTick time.Duration
}

// Observer receives a sample of the swarm at the end of every tick.
type Observer interface {
	ObserveTick(s telemetry.TickSample)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(s telemetry.TickSample)

// ObserveTick implements Observer.
func (f ObserverFunc) ObserveTick(s telemetry.TickSample) { f(s) }

// New validates cfg, spawns the population and prepares the solver.
// A seed of 0 in both opts and cfg picks a time-based seed.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	cfg.Recompute()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := units.NewTable(cfg.Units)
	if err != nil {
		return nil, err
	}

	seed := cfg.Swarm.Seed
	if opts.Seed != 0 {
		seed = opts.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perf := opts.Perf
	if perf == nil {
		perf = telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	}

	store := NewStore(cfg.Swarm.Count, table.Len())
	spawnAgents(store, table, cfg.Swarm, rand.New(rand.NewSource(seed)))

	solver, err := NewSolver(store, table, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating solver: %w", err)
	}

	s := &Simulation{
		cfg:       cfg,
		table:     table,
		store:     store,
		solver:    solver,
		publisher: NewPublisher(nil, table),
		perf:      perf,
		logger:    logger,
		seed:      seed,
	}

	counts := store.TypeCounts()
	attrs := make([]any, 0, 2*len(counts)+6)
	attrs = append(attrs, "seed", seed, "count", store.Len(), "update", solver.Mode().String())
	for i, n := range counts {
		attrs = append(attrs, table.Get(units.TypeID(i)).Name, n)
	}
	logger.Info("swarm created", attrs...)

	return s, nil
}

// Attach connects a renderer. Each type's model is requested from src once,
// buckets are allocated with one slot per agent of the type, and the current
// transforms are published. A nil src uses renderer.ProfileModels.
func (s *Simulation) Attach(r renderer.Renderer, src renderer.ModelSource) error {
	if src == nil {
		src = renderer.ProfileModels{}
	}
	counts := s.store.TypeCounts()
	buckets := make([]renderer.Bucket, s.table.Len())
	for i := range buckets {
		p := s.table.Get(units.TypeID(i))
		m, err := src.Model(p)
		if err != nil {
			return fmt.Errorf("loading model for %s: %w", p.Name, err)
		}
		buckets[i] = renderer.Bucket{
			Type:     p.ID,
			Name:     p.Name,
			Capacity: counts[i],
			Model:    m,
		}
	}
	if err := r.Allocate(buckets); err != nil {
		return fmt.Errorf("allocating buckets: %w", err)
	}

	s.publisher = NewPublisher(r, s.table)
	s.publisher.Publish(s.store, s.tick, s.SimTime())
	return nil
}

// AddObserver registers observers called at the end of every Step.
func (s *Simulation) AddObserver(obs ...Observer) {
	for _, o := range obs {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// Step advances the simulation by exactly one tick.
func (s *Simulation) Step() {
	s.perf.StartTick()

	s.perf.StartPhase(telemetry.PhaseLoad)
	s.solver.Load(s.store)

	s.perf.StartPhase(telemetry.PhaseSpatialGrid)
	s.solver.Rebuild()

	s.perf.StartPhase(telemetry.PhaseSteering)
	s.solver.Steer()

	s.perf.StartPhase(telemetry.PhaseCommit)
	s.solver.Commit(s.store)
	s.tick++

	s.perf.StartPhase(telemetry.PhasePublish)
	s.publisher.Publish(s.store, s.tick, s.SimTime())

	if len(s.observers) > 0 {
		s.perf.StartPhase(telemetry.PhaseTelemetry)
		s.lastTick = s.perf.Elapsed()
		sample := s.Sample()
		for _, o := range s.observers {
			o.ObserveTick(sample)
		}
	}

	s.perf.EndTick()
	s.lastTick = s.perf.Last().TickDuration
}

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() uint64 {
	return s.tick
}

// SimTime returns the simulated time of the completed ticks.
func (s *Simulation) SimTime() time.Duration {
	return time.Duration(s.tick) * s.cfg.Derived.TickDuration
}

// Seed returns the seed the population was spawned with.
func (s *Simulation) Seed() int64 {
	return s.seed
}

// Config returns the configuration the simulation was built from.
func (s *Simulation) Config() *config.Config {
	return s.cfg
}

// Store returns the agent store.
func (s *Simulation) Store() *Store {
	return s.store
}

// Table returns the unit profiles.
func (s *Simulation) Table() *units.Table {
	return s.table
}

// Perf returns the phase timing collector.
func (s *Simulation) Perf() *telemetry.PerfCollector {
	return s.perf
}

// TypeCounts returns agents per type.
func (s *Simulation) TypeCounts() []int {
	return s.store.TypeCounts()
}

// Sample returns a view of the state after the last tick. The slices alias
// solver buffers and are overwritten by the next Step. Duration excludes the
// time spent in observers.
func (s *Simulation) Sample() telemetry.TickSample {
	ws := s.solver.WorkingSet()
	st := s.solver.Stats()
	return telemetry.TickSample{
		Tick:       s.tick,
		SimTime:    s.SimTime(),
		Duration:   s.lastTick,
		Positions:  ws.Pos,
		Velocities: ws.Vel,
		Types:      ws.Types,
		Candidates: st.Candidates,
		Neighbors:  st.Neighbors,
	}
}

// Digest returns a hex SHA-256 of the tick and every agent's state in index order.
func (s *Simulation) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}
	writeF64 := func(v float64) {
		writeU64(math.Float64bits(v))
	}

	writeU64(s.tick)
	for i := range s.store.Len() {
		a := s.store.Get(i)
		writeF64(a.Position.X)
		writeF64(a.Position.Y)
		writeF64(a.Position.Z)
		writeF64(a.Velocity.X)
		writeF64(a.Velocity.Y)
		writeF64(a.Velocity.Z)
		writeF64(a.Heading)
		writeU64(uint64(a.Type))
		writeU64(uint64(a.Slot))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Close releases the solver's workers.
func (s *Simulation) Close() {
	s.solver.Close()
}
