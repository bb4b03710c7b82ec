/*package density projects weighted particle positions onto a surface density
grid centred on a lens.
*/
package density

import (
	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/lensmap/geom"
)

const (
	// Particles farther than this multiple of the FOV from the centre along
	// either image axis are ignored by the adaptive estimator.
	AdaptiveMargin = 0.7
)

// Map is a projected surface density in mass per unit area.
type Map struct {
	Grid  *geom.Grid
	Sigma []float64
}

// Mass returns the total mass in the map.
func (m *Map) Mass() float64 {
	return floats.Sum(m.Sigma) * m.Grid.CellArea()
}

// Add adds the surface density of m2 to m. Both maps must share a geometry.
func (m *Map) Add(m2 *Map) {
	floats.Add(m.Sigma, m2.Sigma)
}

// NewMap returns a zeroed map over g.
func NewMap(g *geom.Grid) *Map {
	return &Map{g, make([]float64, g.Area)}
}

// Project estimates the surface density of the particles xs with masses ms
// around centre.
func Project(xs []geom.Vec, ms []float64, centre geom.Vec, p Params) (*Map, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	g := geom.NewGrid(p.Cells, p.FOV)
	px, py, pz := projectAxes(xs, centre, p.Axes)

	m := NewMap(g)
	switch p.Mode {
	case Histogram:
		Histogram2D(px, py, ms, g, m.Sigma)
	case Adaptive:
		lim := AdaptiveMargin * p.FOV
		px, py, pz, mms := restrict(px, py, pz, ms, lim)
		hs := SmoothingLengths(px, py, pz, p.NeighbourNo)
		SmoothedHistogram(px, py, mms, hs, p.SmoothFac, g, m.Sigma)
	}

	floats.Scale(1/g.CellArea(), m.Sigma)
	return m, nil
}

// projectAxes recentres the particles and splits them into image plane
// coordinates and line of sight coordinates.
func projectAxes(xs []geom.Vec, centre geom.Vec, axes [2]int) (px, py, pz []float64) {
	los := 3 - axes[0] - axes[1]
	px = make([]float64, len(xs))
	py = make([]float64, len(xs))
	pz = make([]float64, len(xs))
	for i := range xs {
		dx := xs[i].Sub(centre)
		px[i] = float64(dx[axes[0]])
		py[i] = float64(dx[axes[1]])
		pz[i] = float64(dx[los])
	}
	return px, py, pz
}

func restrict(px, py, pz, ms []float64, lim float64) (x, y, z, m []float64) {
	for i := range px {
		if px[i] > -lim && px[i] < lim && py[i] > -lim && py[i] < lim {
			x = append(x, px[i])
			y = append(y, py[i])
			z = append(z, pz[i])
			m = append(m, ms[i])
		}
	}
	return x, y, z, m
}

// Histogram2D adds the weights ws of the points (xs, ys) to the cells of g
// which contain them. Points outside g are ignored. out must have length
// g.Area.
func Histogram2D(xs, ys, ws []float64, g *geom.Grid, out []float64) {
	if len(out) != g.Area {
		panic("Histogram2D given buffer of incorrect length.")
	}
	for i := range xs {
		ix, iy, ok := g.CellIdx(xs[i], ys[i])
		if !ok {
			continue
		}
		out[g.Idx(ix, iy)] += ws[i]
	}
}
