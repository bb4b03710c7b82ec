package lens

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phil-mansfield/lensmap/geom"
)

func gaussianKappa(g *geom.Grid, k0, s, x0, y0 float64) []float64 {
	kappa := make([]float64, g.Area)
	for i, x := range g.Centers {
		for j, y := range g.Centers {
			dx, dy := x-x0, y-y0
			kappa[g.Idx(i, j)] = k0 * math.Exp(-(dx*dx+dy*dy)/(2*s*s))
		}
	}
	return kappa
}

func maxNorm(ax, ay []float64) float64 {
	max := 0.0
	for i := range ax {
		max = math.Max(max, math.Hypot(ax[i], ay[i]))
	}
	return max
}

func BenchmarkFourier256(b *testing.B) {
	g := geom.NewGrid(256, 256)
	kappa := gaussianKappa(g, 1, 10, 0, 0)
	f := Fourier{DefaultPadFac}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Deflect(kappa, g)
	}
}

func TestPaddedWidth(t *testing.T) {
	table := []struct {
		padFac  float64
		n, npad int
	}{
		{4, 32, 128},
		{4, 100, 512},
		{1, 64, 64},
		{1.5, 100, 256},
		{0, 10, 16},
	}

	for i, test := range table {
		npad := Fourier{test.padFac}.PaddedWidth(test.n)
		if npad != test.npad {
			t.Errorf("%d) Expected PaddedWidth(%d) = %d, got %d.",
				i, test.n, test.npad, npad)
		}
	}
}

func TestFFTFreq(t *testing.T) {
	assert.Equal(t, []float64{0, 0.25, -0.5, -0.25}, FFTFreq(4, 1))
	assert.Equal(t, []float64{0, 1, 2, -2, -1}, FFTFreq(5, 0.2))
}

func TestSolverEquivalence(t *testing.T) {
	g := geom.NewGrid(32, 32)
	kappa := gaussianKappa(g, 1, 3, 0, 0)

	bx, by := BruteForce{}.Deflect(kappa, g)
	fx, fy := Fourier{8}.Deflect(kappa, g)

	max := maxNorm(bx, by)
	for i, x := range g.Centers {
		for j, y := range g.Centers {
			if math.Abs(x) > 10 || math.Abs(y) > 10 {
				continue
			} else if math.Abs(x) < 2 && math.Abs(y) < 2 {
				continue
			}
			idx := g.Idx(i, j)
			if math.Abs(bx[idx]-fx[idx]) > 0.02*max ||
				math.Abs(by[idx]-fy[idx]) > 0.02*max {
				t.Errorf("(%g, %g) Brute force gives (%g, %g), Fourier gives (%g, %g).",
					x, y, bx[idx], by[idx], fx[idx], fy[idx])
			}
		}
	}
}

func TestPointMassFalloff(t *testing.T) {
	g := geom.NewGrid(64, 64)
	x0 := g.Centers[32]
	kappa := gaussianKappa(g, 1, 1, x0, x0)
	mass := 0.0
	for _, k := range kappa {
		mass += k * g.CellArea()
	}

	ax, ay := Fourier{4}.Deflect(kappa, g)
	expected := mass / math.Pi

	for d := 4; d <= 16; d++ {
		for _, ij := range [][2]int{{32 + d, 32}, {32 - d, 32}, {32, 32 + d}, {32, 32 - d}} {
			idx := g.Idx(ij[0], ij[1])
			r := math.Hypot(g.Centers[ij[0]]-x0, g.Centers[ij[1]]-x0)
			ar := math.Hypot(ax[idx], ay[idx]) * r
			if math.Abs(ar/expected-1) > 0.05 {
				t.Errorf("r = %g: Expected alpha*r = %g, got %g.", r, expected, ar)
			}
		}
	}

	// Deflections point away from the mass.
	assert.True(t, ax[g.Idx(40, 32)] > 0)
	assert.True(t, ay[g.Idx(32, 20)] < 0)
}

func TestPaddingIdempotence(t *testing.T) {
	g := geom.NewGrid(32, 32)
	kappa := gaussianKappa(g, 1, 3, 0, 0)

	ax8, ay8 := Fourier{8}.Deflect(kappa, g)
	ax16, ay16 := Fourier{16}.Deflect(kappa, g)

	max := maxNorm(ax16, ay16)
	for i := range ax8 {
		if math.Abs(ax8[i]-ax16[i]) > 0.01*max || math.Abs(ay8[i]-ay16[i]) > 0.01*max {
			x, y := g.Coords(i)
			t.Errorf("(%d, %d) padFac 8 gives (%g, %g), padFac 16 gives (%g, %g).",
				x, y, ax8[i], ay8[i], ax16[i], ay16[i])
		}
	}
}

func TestBruteForceAt(t *testing.T) {
	g := geom.NewGrid(3, 3)
	kappa := make([]float64, 9)
	kappa[g.Idx(1, 1)] = 1

	// Self-contribution is skipped.
	ax, ay := BruteForceAt(kappa, g, 0, 0)
	assert.Equal(t, 0.0, ax)
	assert.Equal(t, 0.0, ay)

	ax, ay = BruteForceAt(kappa, g, 2, 0)
	assert.InDelta(t, 1/(2*math.Pi), ax, 1e-12)
	assert.InDelta(t, 0, ay, 1e-12)

	bx, by := BruteForce{}.Deflect(kappa, g)
	assert.InDelta(t, -1/math.Pi, bx[g.Idx(0, 1)], 1e-12)
	assert.InDelta(t, 1/math.Pi, by[g.Idx(1, 2)], 1e-12)
}
