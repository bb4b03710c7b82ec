package density

import (
	"math"
)

const (
	// FilterTruncate is the width, in standard deviations, of the Gaussian
	// kernel used by the adaptive estimator.
	FilterTruncate = 3.0
)

// GaussianKernel returns a normalized 1D Gaussian with standard deviation
// sigma, in pixels, truncated at truncate*sigma.
func GaussianKernel(sigma, truncate float64) []float64 {
	r := int(truncate*sigma + 0.5)
	if sigma <= 0 || r == 0 {
		return []float64{1}
	}

	k := make([]float64, 2*r+1)
	sum := 0.0
	for i := range k {
		x := float64(i - r)
		k[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// GaussianFilter convolves the n x n map vals in place with a separable
// Gaussian. Boundaries are reflected about the outer edge of the grid, so
// the total of vals is unchanged.
func GaussianFilter(vals []float64, n int, sigma, truncate float64) {
	k := GaussianKernel(sigma, truncate)
	if len(k) == 1 {
		return
	}

	row := make([]float64, n)
	tmp := make([]float64, n)

	// Along y (the fast index).
	for ix := 0; ix < n; ix++ {
		copy(row, vals[ix*n:(ix+1)*n])
		convolve1D(row, k, tmp)
		copy(vals[ix*n:(ix+1)*n], tmp)
	}

	// Along x.
	for iy := 0; iy < n; iy++ {
		for ix := 0; ix < n; ix++ {
			row[ix] = vals[ix*n+iy]
		}
		convolve1D(row, k, tmp)
		for ix := 0; ix < n; ix++ {
			vals[ix*n+iy] = tmp[ix]
		}
	}
}

func convolve1D(xs, k, out []float64) {
	n, r := len(xs), len(k)/2
	for i := range out {
		sum := 0.0
		for j := range k {
			sum += k[j] * xs[reflect(i+j-r, n)]
		}
		out[i] = sum
	}
}

// reflect maps an index onto [0, n) by mirroring about the grid edges:
// (d c b a | a b c d | d c b a).
func reflect(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
