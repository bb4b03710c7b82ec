package geom

import (
	"fmt"
	"math"
)

// Grid provides an interface for reasoning over a 1D slice as if it were a
// square 2D map centred on a lens. Maps are stored with x as the slow index:
// vals[ix*N + iy].
type Grid struct {
	N    int
	FOV  float64
	Area int

	Edges, Centers []float64
}

// NewGrid returns a Grid with n cells on a side spanning [-fov/2, fov/2].
func NewGrid(n int, fov float64) *Grid {
	g := &Grid{}
	g.Init(n, fov)
	return g
}

// Init initializes a Grid instance.
func (g *Grid) Init(n int, fov float64) {
	if n <= 0 {
		panic(fmt.Sprintf("Grid given %d cells.", n))
	}

	g.N = n
	g.FOV = fov
	g.Area = n * n

	g.Edges = make([]float64, n+1)
	g.Centers = make([]float64, n)
	dx := g.CellWidth()
	for i := range g.Edges {
		g.Edges[i] = -fov/2 + float64(i)*dx
	}
	g.Edges[n] = fov / 2
	for i := range g.Centers {
		g.Centers[i] = (g.Edges[i] + g.Edges[i+1]) / 2
	}
}

// CellWidth returns the width of a single cell.
func (g *Grid) CellWidth() float64 { return g.FOV / float64(g.N) }

// CellArea returns dx*dy.
func (g *Grid) CellArea() float64 { return g.CellWidth() * g.CellWidth() }

// Idx returns the grid index corresponding to a set of coordinates.
func (g *Grid) Idx(ix, iy int) int { return ix*g.N + iy }

// Coords returns the x, y cell coordinates of a point from its grid index.
func (g *Grid) Coords(idx int) (ix, iy int) {
	return idx / g.N, idx % g.N
}

// CellIdx returns the cell which contains the physical point (x, y). Cells
// are half-open except for the last one, which also contains its upper edge.
func (g *Grid) CellIdx(x, y float64) (ix, iy int, ok bool) {
	ix, okx := g.cell1D(x)
	iy, oky := g.cell1D(y)
	return ix, iy, okx && oky
}

func (g *Grid) cell1D(x float64) (int, bool) {
	lo, hi := g.Edges[0], g.Edges[g.N]
	if math.IsNaN(x) || x < lo || x > hi {
		return -1, false
	}
	i := int((x - lo) / g.CellWidth())
	if i >= g.N {
		i = g.N - 1
	}
	// Floating point division can land one cell away from the edge test.
	if i > 0 && x < g.Edges[i] {
		i--
	} else if i < g.N-1 && x >= g.Edges[i+1] {
		i++
	}
	return i, true
}

// Scaled returns a copy of g whose lengths have been divided by scale.
func (g *Grid) Scaled(scale float64) *Grid {
	return NewGrid(g.N, g.FOV/scale)
}

// Linspace returns n evenly spaced points in [lo, hi], inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	dx := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*dx
	}
	out[n-1] = hi
	return out
}
