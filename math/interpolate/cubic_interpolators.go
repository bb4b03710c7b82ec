package interpolate

// BiCubic is a tensor product of natural cubic splines.
type BiCubic struct {
	xs, ys []float64
	vals   []float64
	ny     int

	lastX       float64
	xSplines    []*Spline
	ySplineVals []float64
	ySpline     *Spline
}

func NewBiCubic(xs, ys, vals []float64) *BiCubic {
	checkTable(xs, ys, vals)

	bi := &BiCubic{}
	bi.ny = len(ys)
	bi.vals = vals
	bi.xs, bi.ys = xs, ys

	bi.initSplines()

	return bi
}

func NewUniformBiCubic(
	x0, dx float64, nx int,
	y0, dy float64, ny int,
	vals []float64,
) *BiCubic {
	return NewBiCubic(uniformAxis(x0, dx, nx), uniformAxis(y0, dy, ny), vals)
}

func (bi *BiCubic) initSplines() {
	// One spline along x for every fixed y.
	bi.xSplines = make([]*Spline, len(bi.ys))

	xVals := make([]float64, len(bi.xs))
	for yi := range bi.ys {
		for xi := range bi.xs {
			xVals[xi] = bi.vals[bi.ny*xi+yi]
		}
		bi.xSplines[yi] = NewSpline(bi.xs, append([]float64{}, xVals...))
	}

	bi.lastX = bi.xs[0]
	bi.ySplineVals = make([]float64, len(bi.ys))
	for i := range bi.ySplineVals {
		bi.ySplineVals[i] = bi.xSplines[i].Eval(bi.lastX)
	}

	bi.ySpline = NewSpline(bi.ys, bi.ySplineVals)
}

// Eval evaluates the interpolator at (x, y). Successive calls with the same
// x are cheap. Eval is not safe for concurrent use.
func (bi *BiCubic) Eval(x, y float64) float64 {
	if x != bi.lastX {
		bi.lastX = x
		for i := range bi.ySplineVals {
			bi.ySplineVals[i] = bi.xSplines[i].Eval(x)
		}

		bi.ySpline.Init(bi.ys, bi.ySplineVals)
	}

	return bi.ySpline.Eval(y)
}

func (bi *BiCubic) EvalAll(xs, ys []float64, out ...[]float64) []float64 {
	if len(out) == 0 {
		out = [][]float64{make([]float64, len(xs))}
	}
	for i := range xs {
		out[0][i] = bi.Eval(xs[i], ys[i])
	}
	return out[0]
}

func (bi *BiCubic) EvalGrid(xs, ys []float64, out ...[]float64) []float64 {
	return evalGrid(bi.Eval, xs, ys, out)
}
