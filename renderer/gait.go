package renderer

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Gait is a procedural walk cycle. Points low on the body swing back and
// forth along Z, left and right in antiphase, and bob up.
type Gait struct {
	Frequency float64 // radians per second
	Swing     float64 // Z amplitude
	Lift      float64 // Y amplitude
	LegTop    float64 // local height above which nothing moves
	LegBottom float64 // local height below which motion is full
}

// DefaultGait is the walk cycle used by the viewer.
var DefaultGait = Gait{
	Frequency: 10,
	Swing:     0.5,
	Lift:      0.2,
	LegTop:    2.0,
	LegBottom: 0.5,
}

// Offset returns the displacement of a local-space point at time t (seconds)
// for an instance standing at world position pos. The phase is varied by
// position so neighbors do not march in lockstep.
func (g Gait) Offset(t float64, pos, local r3.Vec) r3.Vec {
	w := 1 - smoothstep(g.LegBottom, g.LegTop, local.Y)
	if w == 0 {
		return r3.Vec{}
	}
	phase := t*g.Frequency + pos.X*0.1 + pos.Z*0.1
	side := 0.0
	switch {
	case local.X > 0:
		side = 1
	case local.X < 0:
		side = -1
	}
	return r3.Vec{
		Y: math.Abs(math.Sin(phase)) * g.Lift * w,
		Z: math.Sin(phase+side*math.Pi/2) * g.Swing * w,
	}
}

func smoothstep(e0, e1, x float64) float64 {
	t := math.Min(math.Max((x-e0)/(e1-e0), 0), 1)
	return t * t * (3 - 2*t)
}
