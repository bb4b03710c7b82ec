package lens

import (
	"math"
)

// Jacobian holds the components of the Jacobian of the lens mapping,
// A = d(beta)/d(theta), and the quantities derived from it, on a square grid.
type Jacobian struct {
	N                  int
	A11, A12, A21, A22 []float64

	DetA, Mag                    []float64
	Kappa, Gamma1, Gamma2, Gamma []float64
	LambdaT, LambdaR             []float64
}

// Analyze computes the Jacobian of the deflection field (ax, ay), sampled on
// an n x n grid with spacings dx and dy. Mag is +/-Inf where detA is zero.
func Analyze(ax, ay []float64, n int, dx, dy float64) *Jacobian {
	jac := &Jacobian{N: n}

	daxdx := Gradient(ax, n, dx, 0)
	daxdy := Gradient(ax, n, dy, 1)
	daydx := Gradient(ay, n, dx, 0)
	daydy := Gradient(ay, n, dy, 1)

	size := n * n
	jac.A11, jac.A12 = make([]float64, size), make([]float64, size)
	jac.A21, jac.A22 = make([]float64, size), make([]float64, size)
	jac.DetA, jac.Mag = make([]float64, size), make([]float64, size)
	jac.Kappa = make([]float64, size)
	jac.Gamma1, jac.Gamma2 = make([]float64, size), make([]float64, size)
	jac.Gamma = make([]float64, size)
	jac.LambdaT, jac.LambdaR = make([]float64, size), make([]float64, size)

	for i := 0; i < size; i++ {
		a11, a12 := 1-daxdx[i], -daxdy[i]
		a21, a22 := -daydx[i], 1-daydy[i]
		jac.A11[i], jac.A12[i], jac.A21[i], jac.A22[i] = a11, a12, a21, a22

		det := a11*a22 - a12*a21
		jac.DetA[i] = det
		jac.Mag[i] = 1 / det

		k := 1 - (a11+a22)/2
		g1 := (a22 - a11) / 2
		g2 := -(a12 + a21) / 2
		g := math.Sqrt(g1*g1 + g2*g2)

		jac.Kappa[i], jac.Gamma1[i], jac.Gamma2[i], jac.Gamma[i] = k, g1, g2, g
		jac.LambdaT[i] = 1 - k - g
		jac.LambdaR[i] = 1 - k + g
	}

	return jac
}

// AnalyzeField is Analyze for a Field.
func AnalyzeField(f *Field) *Jacobian {
	dx, dy := f.Spacing()
	return Analyze(f.AlphaX, f.AlphaY, f.N, dx, dy)
}

// Gradient differentiates the n x n map vals along axis 0 (x, the slow index)
// or axis 1 (y). Interior points use second order central differences and
// edges use first order one-sided differences.
func Gradient(vals []float64, n int, h float64, axis int) []float64 {
	out := make([]float64, n*n)
	if n < 2 {
		return out
	}

	at := func(i, j int) float64 { return vals[i*n+j] }
	if axis == 1 {
		at = func(i, j int) float64 { return vals[j*n+i] }
	}
	set := func(i, j int, v float64) { out[i*n+j] = v }
	if axis == 1 {
		set = func(i, j int, v float64) { out[j*n+i] = v }
	}

	// i runs along the differentiated axis, j along the other one.
	for j := 0; j < n; j++ {
		set(0, j, (at(1, j)-at(0, j))/h)
		set(n-1, j, (at(n-1, j)-at(n-2, j))/h)
		for i := 1; i < n-1; i++ {
			set(i, j, (at(i+1, j)-at(i-1, j))/(2*h))
		}
	}
	return out
}
