package swarm

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/army/config"
	"github.com/pthm-cable/army/units"
)

// spawnAgents fills the store with cfg.Count agents. Each agent draws, in order:
// a type sample, x, z and a heading. Velocity points along the heading at the
// type's max speed.
func spawnAgents(store *Store, table *units.Table, cfg config.SwarmConfig, rng *rand.Rand) {
	extent := cfg.SpawnExtent
	for range cfg.Count {
		t := table.Pick(rng.Float64())
		p := table.Get(t)

		x := (rng.Float64() - 0.5) * extent
		z := (rng.Float64() - 0.5) * extent
		theta := rng.Float64() * 2 * math.Pi
		s, c := math.Sincos(theta)

		store.Add(Agent{
			Position: r3.Vec{X: x, Z: z},
			Velocity: r3.Scale(p.Boids.MaxSpeed, r3.Vec{X: s, Z: c}),
			Heading:  theta,
			Type:     t,
		})
	}
}
