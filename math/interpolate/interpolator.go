/*package interpolate provides 1D and 2D interpolation over rectilinear
tables. 2D tables are stored with x as the slow index: vals[ix*ny + iy].
*/
package interpolate

import (
	"fmt"
	"strings"
)

type Interpolator interface {
	Eval(x float64) float64
	EvalAll(xs []float64, out ...[]float64) []float64
}

var _ Interpolator = &Spline{}

type BiInterpolator interface {
	Eval(x, y float64) float64
	EvalAll(xs, ys []float64, out ...[]float64) []float64
	// EvalGrid evaluates the interpolator at every point of the tensor
	// product of xs and ys, x-major.
	EvalGrid(xs, ys []float64, out ...[]float64) []float64
}

var (
	_ BiInterpolator = &BiCubic{}
	_ BiInterpolator = &BiLinear{}
)

// Method selects a 2D interpolation scheme.
type Method int

const (
	Cubic Method = iota
	Linear2D
)

func MethodFromString(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "", "cubic":
		return Cubic, nil
	case "linear":
		return Linear2D, nil
	}
	return Cubic, fmt.Errorf("Unrecognized interpolation method '%s'.", s)
}

// New2D creates a 2D interpolator of the given type over the table vals.
func New2D(m Method, xs, ys, vals []float64) BiInterpolator {
	switch m {
	case Linear2D:
		return NewBiLinear(xs, ys, vals)
	}
	return NewBiCubic(xs, ys, vals)
}

// NewUniform2D is New2D for a table with evenly spaced axes starting at x0 and
// y0.
func NewUniform2D(
	m Method, x0, dx float64, nx int, y0, dy float64, ny int, vals []float64,
) BiInterpolator {
	switch m {
	case Linear2D:
		return NewUniformBiLinear(x0, dx, nx, y0, dy, ny, vals)
	}
	return NewUniformBiCubic(x0, dx, nx, y0, dy, ny, vals)
}

func uniformAxis(x0, dx float64, n int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = x0 + float64(i)*dx
	}
	return xs
}

func checkTable(xs, ys, vals []float64) {
	if len(xs)*len(ys) != len(vals) {
		panic(fmt.Sprintf(
			"len(vals) = %d, but len(xs) = %d and len(ys) = %d",
			len(vals), len(xs), len(ys),
		))
	}
}

func evalGrid(
	eval func(x, y float64) float64, xs, ys []float64, out [][]float64,
) []float64 {
	if len(out) == 0 {
		out = [][]float64{make([]float64, len(xs)*len(ys))}
	}
	// y is the fast index, so each row of x reuses the cached column splines.
	for j := range xs {
		for k := range ys {
			out[0][j*len(ys)+k] = eval(xs[j], ys[k])
		}
	}
	return out[0]
}
