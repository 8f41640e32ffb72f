package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// SafeUnit returns v scaled to unit length, or the zero vector when v is zero.
// r3.Unit divides by the norm and would yield NaN.
func SafeUnit(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}

// ClampLength scales v down to length limit when it is longer.
func ClampLength(v r3.Vec, limit float64) r3.Vec {
	n2 := r3.Norm2(v)
	if n2 <= limit*limit {
		return v
	}
	return r3.Scale(limit/math.Sqrt(n2), v)
}

// HeadingOf returns the yaw that faces along v on the XZ plane; yaw 0 faces +Z.
func HeadingOf(v r3.Vec) float64 {
	return math.Atan2(v.X, v.Z)
}
