// Package systems provides the spatial index and steering math used by the swarm solver.
package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// CellKey identifies one grid cell on the XZ plane.
type CellKey struct {
	X, Z int32
}

// pruneRatio bounds how many empty cells may be retained per occupied cell
// before Clear drops the empty ones.
const pruneRatio = 4

// SpatialGrid buckets agent indices by cell for radius-neighbor lookups.
// The grid is unbounded; cells are created on first insert.
type SpatialGrid struct {
	cellSize float64
	cells    map[CellKey][]int
	occupied []CellKey // cells holding at least one index since the last Clear
	count    int
}

// NewSpatialGrid creates an empty grid. cellSize must be positive.
func NewSpatialGrid(cellSize float64) *SpatialGrid {
	if !(cellSize > 0) {
		panic("systems: spatial grid cell size must be positive")
	}
	return &SpatialGrid{
		cellSize: cellSize,
		cells:    make(map[CellKey][]int),
	}
}

// CellSize returns the edge length of one cell.
func (g *SpatialGrid) CellSize() float64 {
	return g.cellSize
}

// Len returns the number of indices inserted since the last Clear.
func (g *SpatialGrid) Len() int {
	return g.count
}

// Clear empties all cells. Cell storage is kept for the next rebuild.
func (g *SpatialGrid) Clear() {
	for _, k := range g.occupied {
		g.cells[k] = g.cells[k][:0]
	}
	if len(g.cells) > pruneRatio*(len(g.occupied)+1) {
		for k, v := range g.cells {
			if len(v) == 0 {
				delete(g.cells, k)
			}
		}
	}
	g.occupied = g.occupied[:0]
	g.count = 0
}

// KeyFor returns the cell containing pos.
func (g *SpatialGrid) KeyFor(pos r3.Vec) CellKey {
	return CellKey{
		X: int32(math.Floor(pos.X / g.cellSize)),
		Z: int32(math.Floor(pos.Z / g.cellSize)),
	}
}

// Insert adds an agent index to the cell containing pos.
func (g *SpatialGrid) Insert(index int, pos r3.Vec) {
	k := g.KeyFor(pos)
	cell := g.cells[k]
	if len(cell) == 0 {
		g.occupied = append(g.occupied, k)
	}
	g.cells[k] = append(cell, index)
	g.count++
}

// Cell returns the indices stored in one cell. The slice is owned by the grid.
func (g *SpatialGrid) Cell(k CellKey) []int {
	return g.cells[k]
}

// QueryInto appends to dst every index in the square block of cells covering
// radius around pos, and returns the extended slice. The result is a superset
// of the agents within radius; callers filter by exact distance.
// Cells are scanned X-major, then Z, so the order is deterministic.
func (g *SpatialGrid) QueryInto(dst []int, pos r3.Vec, radius float64) []int {
	c := g.KeyFor(pos)
	r := int32(math.Ceil(radius / g.cellSize))

	for x := c.X - r; x <= c.X+r; x++ {
		for z := c.Z - r; z <= c.Z+r; z++ {
			dst = append(dst, g.cells[CellKey{X: x, Z: z}]...)
		}
	}
	return dst
}

// Query returns candidate neighbors of pos in a new slice.
// Prefer QueryInto in per-tick code.
func (g *SpatialGrid) Query(pos r3.Vec, radius float64) []int {
	return g.QueryInto(nil, pos, radius)
}
