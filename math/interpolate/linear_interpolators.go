package interpolate

import (
	"sort"
)

// BiLinear performs bilinear interpolation over a rectilinear table. Points
// outside the table are clamped to its edge.
type BiLinear struct {
	xs, ys []float64
	vals   []float64
}

func NewBiLinear(xs, ys, vals []float64) *BiLinear {
	checkTable(xs, ys, vals)
	return &BiLinear{xs, ys, vals}
}

func NewUniformBiLinear(
	x0, dx float64, nx int,
	y0, dy float64, ny int,
	vals []float64,
) *BiLinear {
	return NewBiLinear(uniformAxis(x0, dx, nx), uniformAxis(y0, dy, ny), vals)
}

// bracket returns i and t such that x = xs[i] + t*(xs[i+1] - xs[i]).
func bracket(xs []float64, x float64) (int, float64) {
	n := len(xs)
	if x <= xs[0] {
		return 0, 0
	} else if x >= xs[n-1] {
		return n - 2, 1
	}
	i := sort.SearchFloat64s(xs, x) - 1
	if i < 0 {
		i = 0
	}
	return i, (x - xs[i]) / (xs[i+1] - xs[i])
}

func (bi *BiLinear) Eval(x, y float64) float64 {
	ny := len(bi.ys)
	ix, tx := bracket(bi.xs, x)
	iy, ty := bracket(bi.ys, y)

	v00 := bi.vals[ix*ny+iy]
	v01 := bi.vals[ix*ny+iy+1]
	v10 := bi.vals[(ix+1)*ny+iy]
	v11 := bi.vals[(ix+1)*ny+iy+1]

	return v00*(1-tx)*(1-ty) + v10*tx*(1-ty) + v01*(1-tx)*ty + v11*tx*ty
}

func (bi *BiLinear) EvalAll(xs, ys []float64, out ...[]float64) []float64 {
	if len(out) == 0 {
		out = [][]float64{make([]float64, len(xs))}
	}
	for i := range xs {
		out[0][i] = bi.Eval(xs[i], ys[i])
	}
	return out[0]
}

func (bi *BiLinear) EvalGrid(xs, ys []float64, out ...[]float64) []float64 {
	return evalGrid(bi.Eval, xs, ys, out)
}
