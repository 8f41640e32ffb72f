package systems

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/army/units"
)

// Neighborhood accumulates the flocking sums of one agent over its neighbors.
type Neighborhood struct {
	Separation r3.Vec // sum of away-directions weighted by 1/d
	Alignment  r3.Vec // sum of neighbor velocities
	Cohesion   r3.Vec // sum of neighbor positions
	Count      int
}

// Reset zeroes the sums.
func (n *Neighborhood) Reset() {
	*n = Neighborhood{}
}

// Add accumulates one candidate. Candidates at distance 0 (including the agent
// itself) or at or beyond radius are ignored. Reports whether it counted.
func (n *Neighborhood) Add(self, otherPos, otherVel r3.Vec, radius float64) bool {
	diff := r3.Sub(self, otherPos)
	d := r3.Norm(diff)
	if !(d > 0 && d < radius) {
		return false
	}
	n.Separation = r3.Add(n.Separation, r3.Scale(1/d, SafeUnit(diff)))
	n.Alignment = r3.Add(n.Alignment, otherVel)
	n.Cohesion = r3.Add(n.Cohesion, otherPos)
	n.Count++
	return true
}

// Forces holds the unweighted steering terms for one agent.
type Forces struct {
	Separation r3.Vec
	Alignment  r3.Vec
	Cohesion   r3.Vec
	Centering  r3.Vec
}

// Forces turns the accumulated sums into steering forces. Each flocking term is
// clamped to b.MaxForce; all three are zero when no neighbor was counted.
// Centering pulls toward the origin proportionally to the distance from it.
func (n *Neighborhood) Forces(pos, vel r3.Vec, b units.Boids, centering float64) Forces {
	f := Forces{Centering: r3.Scale(-centering, pos)}
	if n.Count == 0 {
		return f
	}
	inv := 1 / float64(n.Count)
	f.Separation = Steer(r3.Scale(inv, n.Separation), vel, b.MaxSpeed, b.MaxForce)
	f.Alignment = Steer(r3.Scale(inv, n.Alignment), vel, b.MaxSpeed, b.MaxForce)
	f.Cohesion = Steer(r3.Sub(r3.Scale(inv, n.Cohesion), pos), vel, b.MaxSpeed, b.MaxForce)
	return f
}

// Acceleration combines the forces with the type's weights.
func (f Forces) Acceleration(b units.Boids) r3.Vec {
	acc := r3.Scale(b.Separation, f.Separation)
	acc = r3.Add(acc, r3.Scale(b.Alignment, f.Alignment))
	acc = r3.Add(acc, r3.Scale(b.Cohesion, f.Cohesion))
	return r3.Add(acc, f.Centering)
}

// Steer returns the force that turns vel toward desired at full speed,
// clamped to maxForce.
func Steer(desired, vel r3.Vec, maxSpeed, maxForce float64) r3.Vec {
	return ClampLength(r3.Sub(r3.Scale(maxSpeed, SafeUnit(desired)), vel), maxForce)
}

// Integrate applies acc to vel, clamps the speed, and moves pos by one tick.
func Integrate(pos, vel, acc r3.Vec, maxSpeed float64) (newPos, newVel r3.Vec) {
	newVel = ClampLength(r3.Add(vel, acc), maxSpeed)
	return r3.Add(pos, newVel), newVel
}

// UpdateHeading returns the heading for vel, or prev when the agent moves no
// faster than eps.
func UpdateHeading(prev float64, vel r3.Vec, eps float64) float64 {
	if r3.Norm(vel) > eps {
		return HeadingOf(vel)
	}
	return prev
}
