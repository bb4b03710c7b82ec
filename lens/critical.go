package lens

import (
	"math"

	"github.com/phil-mansfield/lensmap/cosmo"
	"github.com/phil-mansfield/lensmap/geom"
)

// Curves are the critical curves of a lens.
type Curves struct {
	// Critical contains every component of the detA = 0 contour.
	Critical []geom.Curve
	// Tangential is the longest component of the lambda_t = 0 contour. It is
	// empty if there is no tangential critical curve.
	Tangential geom.Curve
	// Area is the signed area enclosed by Tangential.
	Area float64
	// EinsteinRadius is the radius, in arcseconds, of the circle with the
	// same area as Tangential.
	EinsteinRadius float64
}

// Ncrit returns the number of critical curves.
func (c *Curves) Ncrit() int { return len(c.Critical) }

// ExtractCurves finds the critical curves of the Jacobian jac, sampled on the
// ray grid of f, for a lens at angular diameter distance dl (Mpc). Curve
// vertices are physical lens plane positions in Mpc.
func ExtractCurves(jac *Jacobian, f *Field, dl float64) *Curves {
	xs, ys := make([]float64, len(f.Xs)), make([]float64, len(f.Ys))
	for i := range xs {
		xs[i] = f.Xs[i] * f.Xi0
	}
	for i := range ys {
		ys[i] = f.Ys[i] * f.Xi0
	}

	c := &Curves{}
	c.Critical = Contour(jac.DetA, xs, ys, 0)
	c.Tangential = Longest(Contour(jac.LambdaT, xs, ys, 0))
	if len(c.Tangential) == 0 {
		return c
	}

	c.Area = Area(c.Tangential)
	c.EinsteinRadius = EinsteinRadius(c.Area, dl)
	return c
}

// EinsteinRadius returns the radius in arcseconds of a circle with area
// |area| at distance dl.
func EinsteinRadius(area, dl float64) float64 {
	return math.Sqrt(math.Abs(area)/math.Pi) / dl * cosmo.ArcsecPerRadian
}

// Longest returns the curve with the most vertices. Ties go to the first
// such curve. nil is returned for an empty list.
func Longest(cs []geom.Curve) geom.Curve {
	var best geom.Curve
	for _, c := range cs {
		if len(c) > len(best) {
			best = c
		}
	}
	return best
}

// Area returns the signed area enclosed by c using Green's theorem. The
// polygon is closed implicitly, so curves which already repeat their first
// vertex give the same result as those which don't. The area is positive for
// counter-clockwise curves.
func Area(c geom.Curve) float64 {
	n := len(c)
	if n < 3 {
		return 0
	}
	a := 0.0
	for i := range c {
		next := c[(i+1)%n]
		a += c[i][0] * (next[1] - c[i][1])
	}
	return a
}

// Contour returns the level set vals = level of the map vals, which is
// sampled at the points (xs[i], ys[j]) and stored as vals[i*len(ys) + j].
// Each connected component is returned as a separate curve. Open curves end
// on the boundary of the map or at a non-finite value. Closed curves repeat
// their first vertex.
func Contour(vals, xs, ys []float64, level float64) []geom.Curve {
	ct := newContourer(vals, xs, ys, level)
	ct.findSegments()
	return ct.stitch()
}

type contourer struct {
	vals, xs, ys []float64
	nx, ny       int
	level        float64

	// Nodes are crossings on grid edges, keyed by edgeID.
	pts   map[int][2]float64
	adj   map[int][]int
	order []int
}

func newContourer(vals, xs, ys []float64, level float64) *contourer {
	if len(vals) != len(xs)*len(ys) {
		panic("Contour given map with inconsistent dimensions.")
	}
	return &contourer{
		vals: vals, xs: xs, ys: ys,
		nx: len(xs), ny: len(ys), level: level,
		pts: map[int][2]float64{}, adj: map[int][]int{},
	}
}

// edgeID identifies the grid edge leaving (i, j) in the +x (dir = 0) or +y
// (dir = 1) direction.
func (ct *contourer) edgeID(i, j, dir int) int {
	return 2*(i*ct.ny+j) + dir
}

func (ct *contourer) v(i, j int) float64 { return ct.vals[i*ct.ny+j] }

func (ct *contourer) above(v float64) bool { return v >= ct.level }

// crossing returns the node for the edge leaving (i, j) in direction dir,
// creating it if needed.
func (ct *contourer) crossing(i, j, dir int) int {
	id := ct.edgeID(i, j, dir)
	if _, ok := ct.pts[id]; ok {
		return id
	}

	i2, j2 := i, j
	if dir == 0 {
		i2++
	} else {
		j2++
	}
	a, b := ct.v(i, j), ct.v(i2, j2)
	t := (ct.level - a) / (b - a)

	x := ct.xs[i] + t*(ct.xs[i2]-ct.xs[i])
	y := ct.ys[j] + t*(ct.ys[j2]-ct.ys[j])
	ct.pts[id] = [2]float64{x, y}
	ct.order = append(ct.order, id)
	return id
}

func (ct *contourer) connect(a, b int) {
	ct.adj[a] = append(ct.adj[a], b)
	ct.adj[b] = append(ct.adj[b], a)
}

func (ct *contourer) findSegments() {
	for i := 0; i < ct.nx-1; i++ {
		for j := 0; j < ct.ny-1; j++ {
			ct.cellSegments(i, j)
		}
	}
}

// cellSegments adds the segments passing through the cell with lower corner
// (i, j). The cell's edges are numbered counter-clockwise from the bottom.
func (ct *contourer) cellSegments(i, j int) {
	v00, v10 := ct.v(i, j), ct.v(i+1, j)
	v11, v01 := ct.v(i+1, j+1), ct.v(i, j+1)
	for _, v := range []float64{v00, v10, v11, v01} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return
		}
	}

	a00, a10 := ct.above(v00), ct.above(v10)
	a11, a01 := ct.above(v11), ct.above(v01)

	cut := [4]bool{a00 != a10, a10 != a11, a01 != a11, a00 != a01}
	edge := func(k int) int {
		switch k {
		case 0:
			return ct.crossing(i, j, 0)
		case 1:
			return ct.crossing(i+1, j, 1)
		case 2:
			return ct.crossing(i, j+1, 0)
		}
		return ct.crossing(i, j, 1)
	}

	var ks []int
	for k := range cut {
		if cut[k] {
			ks = append(ks, k)
		}
	}

	switch len(ks) {
	case 2:
		ct.connect(edge(ks[0]), edge(ks[1]))
	case 4:
		centre := ct.above((v00 + v10 + v11 + v01) / 4)
		// Decide which pair of opposite corners is joined through the
		// centre of the cell.
		if centre == a00 {
			// v00 and v11 are joined: cut off v10 and v01.
			ct.connect(edge(0), edge(1))
			ct.connect(edge(2), edge(3))
		} else {
			// v10 and v01 are joined: cut off v00 and v11.
			ct.connect(edge(3), edge(0))
			ct.connect(edge(1), edge(2))
		}
	}
}

func (ct *contourer) stitch() []geom.Curve {
	visited := map[int]bool{}
	var curves []geom.Curve

	for _, id := range ct.order {
		if !visited[id] && len(ct.adj[id]) == 1 {
			curves = append(curves, ct.walk(id, visited))
		}
	}
	for _, id := range ct.order {
		if !visited[id] && len(ct.adj[id]) == 2 {
			c := ct.walk(id, visited)
			curves = append(curves, append(c, c[0]))
		}
	}

	return curves
}

func (ct *contourer) walk(start int, visited map[int]bool) geom.Curve {
	c := geom.Curve{ct.pts[start]}
	visited[start] = true

	for cur := start; ; {
		next := -1
		for _, nb := range ct.adj[cur] {
			if !visited[nb] {
				next = nb
				break
			}
		}
		if next < 0 {
			return c
		}
		visited[next] = true
		c = append(c, ct.pts[next])
		cur = next
	}
}
