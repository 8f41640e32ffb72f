package renderer

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/army/units"
)

// Shape is the primitive a rig part is drawn with.
type Shape uint8

const (
	ShapeBox Shape = iota
	ShapeSphere
)

// Part is one rigid piece of a unit's body in instance-local space,
// facing +Z with feet at Y = 0.
type Part struct {
	Bone   string
	Shape  Shape
	Center r3.Vec
	Size   r3.Vec // full extents; a sphere uses Size.X as its diameter
}

// Base dimensions at bone scale 1.
var (
	footSize     = r3.Vec{X: 0.25, Y: 0.15, Z: 0.4}
	lowerLegSize = r3.Vec{X: 0.2, Y: 0.6, Z: 0.2}
	upperLegSize = r3.Vec{X: 0.25, Y: 0.6, Z: 0.25}
	torsoSize    = r3.Vec{X: 0.8, Y: 1.0, Z: 0.5}
	shoulderSize = r3.Vec{X: 0.25, Y: 0.25, Z: 0.25}
	upperArmSize = r3.Vec{X: 0.18, Y: 0.5, Z: 0.18}
	lowerArmSize = r3.Vec{X: 0.15, Y: 0.45, Z: 0.15}
	handSize     = r3.Vec{X: 0.12, Y: 0.12, Z: 0.12}
	headDiameter = 0.5
)

// boneAliases lists coarser bone names a profile may scale instead.
var boneAliases = map[string]string{
	"UpperLeg": "Leg",
	"LowerLeg": "Leg",
	"Foot":     "Leg",
	"UpperArm": "Arm",
	"LowerArm": "Arm",
	"Hand":     "Arm",
}

func boneScale(p *units.Profile, bone string) r3.Vec {
	s, ok := p.BoneScales[bone]
	if !ok {
		s = p.BoneScale(boneAliases[bone])
	}
	return r3.Vec{X: s[0], Y: s[1], Z: s[2]}
}

func scaled(size, s r3.Vec) r3.Vec {
	return r3.Vec{X: size.X * s.X, Y: size.Y * s.Y, Z: size.Z * s.Z}
}

// Rig builds the body of a unit type: legs stacked from the ground, a torso,
// a head on top and arms hanging from the shoulders. Bone scales resize each
// part and the stack stays connected.
func Rig(p *units.Profile) []Part {
	foot := scaled(footSize, boneScale(p, "Foot"))
	lowerLeg := scaled(lowerLegSize, boneScale(p, "LowerLeg"))
	upperLeg := scaled(upperLegSize, boneScale(p, "UpperLeg"))
	torso := scaled(torsoSize, boneScale(p, "Torso"))
	shoulder := scaled(shoulderSize, boneScale(p, "Shoulder"))
	upperArm := scaled(upperArmSize, boneScale(p, "UpperArm"))
	lowerArm := scaled(lowerArmSize, boneScale(p, "LowerArm"))
	hand := scaled(handSize, boneScale(p, "Hand"))
	head := headDiameter * boneScale(p, "Head").X

	parts := make([]Part, 0, 16)
	hip := foot.Y + lowerLeg.Y + upperLeg.Y
	neck := hip + torso.Y

	for _, side := range []float64{-1, 1} {
		legX := side * torso.X / 4
		parts = append(parts,
			Part{Bone: "Foot", Center: r3.Vec{X: legX, Y: foot.Y / 2, Z: foot.Z / 4}, Size: foot},
			Part{Bone: "LowerLeg", Center: r3.Vec{X: legX, Y: foot.Y + lowerLeg.Y/2}, Size: lowerLeg},
			Part{Bone: "UpperLeg", Center: r3.Vec{X: legX, Y: foot.Y + lowerLeg.Y + upperLeg.Y/2}, Size: upperLeg},
		)

		armX := side * (torso.X/2 + shoulder.X/2)
		y := neck - shoulder.Y/2
		parts = append(parts, Part{Bone: "Shoulder", Shape: ShapeSphere, Center: r3.Vec{X: armX, Y: y}, Size: shoulder})
		y -= shoulder.Y/2 + upperArm.Y/2
		parts = append(parts, Part{Bone: "UpperArm", Center: r3.Vec{X: armX, Y: y}, Size: upperArm})
		y -= upperArm.Y/2 + lowerArm.Y/2
		parts = append(parts, Part{Bone: "LowerArm", Center: r3.Vec{X: armX, Y: y}, Size: lowerArm})
		y -= lowerArm.Y/2 + hand.Y/2
		parts = append(parts, Part{Bone: "Hand", Shape: ShapeSphere, Center: r3.Vec{X: armX, Y: y}, Size: hand})
	}

	parts = append(parts,
		Part{Bone: "Torso", Center: r3.Vec{Y: hip + torso.Y/2}, Size: torso},
		Part{Bone: "Head", Shape: ShapeSphere, Center: r3.Vec{Y: neck + head/2}, Size: r3.Vec{X: head, Y: head, Z: head}},
	)
	return parts
}

// Height returns the top of the tallest part.
func Height(parts []Part) float64 {
	h := 0.0
	for _, p := range parts {
		h = max(h, p.Center.Y+p.Size.Y/2)
	}
	return h
}
