package interpolate

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// Spline represents a 1D natural cubic spline which can be used to
// interpolate between points. Outside the table, the value at the nearest
// end point is returned.
type Spline struct {
	nc interp.NaturalCubic
}

// NewSpline creates a spline based off a table of x and y values. The values
// must be sorted in increasing order in x.
func NewSpline(xs, ys []float64) *Spline {
	sp := &Spline{}
	sp.Init(xs, ys)
	return sp
}

// Init reinitializes the spline with a new table.
func (sp *Spline) Init(xs, ys []float64) {
	if len(xs) != len(ys) {
		panic(fmt.Sprintf(
			"Table given to NewSpline() has len(xs) = %d but len(ys) = %d.",
			len(xs), len(ys),
		))
	} else if len(xs) <= 2 {
		panic(fmt.Sprintf("Table given to NewSpline() has length of %d.", len(xs)))
	}

	if err := sp.nc.Fit(xs, ys); err != nil {
		panic(fmt.Sprintf("Could not fit spline: %s", err.Error()))
	}
}

// Eval computes the value of the spline at the given point.
func (sp *Spline) Eval(x float64) float64 {
	return sp.nc.Predict(x)
}

func (sp *Spline) EvalAll(xs []float64, out ...[]float64) []float64 {
	if len(out) == 0 {
		out = [][]float64{make([]float64, len(xs))}
	}
	for i, x := range xs {
		out[0][i] = sp.Eval(x)
	}
	return out[0]
}
