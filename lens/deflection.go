/*package lens computes the lensing observables of a convergence map: the
deflection field, the Jacobian of the lens mapping and its critical curves.

All maps are square and stored with x as the slow index, vals[ix*n + iy].
*/
package lens

import (
	"math"

	"github.com/mjibson/go-dsp/fft"

	"github.com/phil-mansfield/lensmap/geom"
)

const (
	// DefaultPadFac is the default ratio of padded FFT width to map width.
	DefaultPadFac = 4.0
)

// Solver computes the deflection field of a convergence map. The lengths of
// g set the units of the output.
type Solver interface {
	Deflect(kappa []float64, g *geom.Grid) (ax, ay []float64)
}

var (
	_ Solver = BruteForce{}
	_ Solver = Fourier{}
)

// BruteForce sums the contribution of every cell to every other cell
// directly. It is O(n^4) and is intended as a reference implementation.
type BruteForce struct{}

func (BruteForce) Deflect(kappa []float64, g *geom.Grid) (ax, ay []float64) {
	ax, ay = make([]float64, g.Area), make([]float64, g.Area)
	for idx := range ax {
		i, j := g.Coords(idx)
		ax[idx], ay[idx] = BruteForceAt(kappa, g, g.Centers[i], g.Centers[j])
	}
	return ax, ay
}

// BruteForceAt returns the deflection at the point (qx, qy). A cell whose
// centre coincides with the point does not contribute.
func BruteForceAt(kappa []float64, g *geom.Grid, qx, qy float64) (ax, ay float64) {
	for i := 0; i < g.N; i++ {
		dx := qx - g.Centers[i]
		for j := 0; j < g.N; j++ {
			k := kappa[g.Idx(i, j)]
			if k == 0 {
				continue
			}
			dy := qy - g.Centers[j]
			r2 := dx*dx + dy*dy
			if r2 == 0 {
				continue
			}
			ax += k * dx / r2
			ay += k * dy / r2
		}
	}

	norm := g.CellArea() / math.Pi
	return ax * norm, ay * norm
}

// Fourier convolves the convergence map with the deflection kernel in
// Fourier space. The map is zero padded to PadFac times its width, rounded up
// to a power of two, to suppress periodic images.
type Fourier struct {
	PadFac float64
}

// PaddedWidth returns the width of the FFT used for an n x n map.
func (f Fourier) PaddedWidth(n int) int {
	padFac := f.PadFac
	if padFac < 1 {
		padFac = 1
	}
	return nextPow2(int(math.Ceil(padFac * float64(n))))
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// FFTFreq returns the sample frequencies of an FFT of width n with sample
// spacing d, in numpy's ordering.
func FFTFreq(n int, d float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		k := i
		if i >= (n+1)/2 {
			k = i - n
		}
		out[i] = float64(k) / (float64(n) * d)
	}
	return out
}

func (f Fourier) Deflect(kappa []float64, g *geom.Grid) (ax, ay []float64) {
	n := g.N
	npad := f.PaddedWidth(n)
	dx := g.CellWidth()

	buf := make([][]complex128, npad)
	for i := range buf {
		buf[i] = make([]complex128, npad)
		if i >= n {
			continue
		}
		for j := 0; j < n; j++ {
			buf[i][j] = complex(kappa[i*n+j], 0)
		}
	}

	kft := fft.FFT2(buf)

	ks := FFTFreq(npad, dx)
	for i := range ks {
		ks[i] *= 2 * math.Pi
	}

	xft := make([][]complex128, npad)
	yft := make([][]complex128, npad)
	for i := range xft {
		xft[i] = make([]complex128, npad)
		yft[i] = make([]complex128, npad)
		kx := ks[i]
		for j := range xft[i] {
			ky := ks[j]
			k2 := kx*kx + ky*ky
			if k2 == 0 {
				continue
			}
			xft[i][j] = kft[i][j] * complex(0, 2*kx/k2)
			yft[i][j] = kft[i][j] * complex(0, 2*ky/k2)
		}
	}

	xs := fft.IFFT2(xft)
	ys := fft.IFFT2(yft)

	ax, ay = make([]float64, g.Area), make([]float64, g.Area)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			ax[i*n+j] = -real(xs[i][j])
			ay[i*n+j] = -real(ys[i][j])
		}
	}
	return ax, ay
}
