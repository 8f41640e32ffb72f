package rlview

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/army/renderer"
	"github.com/pthm-cable/army/units"
)

// Body is the mesh handle stored in renderer.Model for a unit type.
type Body struct {
	Parts    []renderer.Part
	Speed    float64
	Material rl.Material
}

// Models builds a rig per unit type from shared unit primitives.
// It must be created after the window is open.
type Models struct {
	cube   rl.Mesh
	sphere rl.Mesh
	bodies []*Body
}

// NewModels uploads the shared cube and sphere meshes.
func NewModels() *Models {
	return &Models{
		cube:   rl.GenMeshCube(1, 1, 1),
		sphere: rl.GenMeshSphere(0.5, 10, 10),
	}
}

// Model implements renderer.ModelSource.
func (m *Models) Model(p *units.Profile) (renderer.Model, error) {
	mat := rl.LoadMaterialDefault()
	mat.GetMap(rl.MapDiffuse).Color = rl.NewColor(p.Color.R, p.Color.G, p.Color.B, p.Color.A)

	body := &Body{
		Parts:    renderer.Rig(p),
		Speed:    p.Speed,
		Material: mat,
	}
	m.bodies = append(m.bodies, body)
	return renderer.Model{Name: p.Name, Mesh: body, Color: p.Color}, nil
}

func (m *Models) mesh(s renderer.Shape) rl.Mesh {
	if s == renderer.ShapeSphere {
		return m.sphere
	}
	return m.cube
}

// Unload frees every mesh and material.
func (m *Models) Unload() {
	for _, b := range m.bodies {
		rl.UnloadMaterial(b.Material)
	}
	m.bodies = nil
	rl.UnloadMesh(&m.cube)
	rl.UnloadMesh(&m.sphere)
}

func toMatrix(m [16]float32) rl.Matrix {
	return rl.Matrix{
		M0: m[0], M1: m[1], M2: m[2], M3: m[3],
		M4: m[4], M5: m[5], M6: m[6], M7: m[7],
		M8: m[8], M9: m[9], M10: m[10], M11: m[11],
		M12: m[12], M13: m[13], M14: m[14], M15: m[15],
	}
}
