package lens

import (
	"fmt"

	"github.com/phil-mansfield/lensmap/geom"
	"github.com/phil-mansfield/lensmap/math/interpolate"
)

const (
	// DefaultXi0 is the default length scale, in Mpc, used to make lens
	// plane coordinates dimensionless.
	DefaultXi0 = 0.001
)

// Field is a deflection field sampled on a square grid of rays. Xs, Ys and
// both deflection components are dimensionless: physical lengths are
// obtained by multiplying by Xi0.
type Field struct {
	N              int
	Xi0            float64
	Xs, Ys         []float64
	AlphaX, AlphaY []float64
}

// RayParams configures the ray grid used to sample a deflection field.
type RayParams struct {
	Rays   int
	Width  float64 // Physical width of the ray grid.
	Xi0    float64
	Interp interpolate.Method
}

func (p *RayParams) Validate() error {
	if p.Rays < 3 {
		return fmt.Errorf("Rays = %d, must be at least 3.", p.Rays)
	} else if !(p.Width > 0) {
		return fmt.Errorf("Ray width = %g, must be positive.", p.Width)
	} else if !(p.Xi0 > 0) {
		return fmt.Errorf("Xi0 = %g, must be positive.", p.Xi0)
	}
	return nil
}

// Axis returns the dimensionless ray coordinates along one axis.
func (p *RayParams) Axis() []float64 {
	half := p.Width / 2 / p.Xi0
	return geom.Linspace(-half, half, p.Rays)
}

// Deflect solves for the deflection of the convergence map kappa, which
// covers the physical grid g.
func Deflect(kappa []float64, g *geom.Grid, xi0 float64, s Solver) (ax, ay []float64) {
	return s.Deflect(kappa, g.Scaled(xi0))
}

// Resample interpolates a deflection field computed at the cell centres of the
// physical grid g onto the ray grid described by p.
func Resample(ax, ay []float64, g *geom.Grid, p RayParams) *Field {
	sg := g.Scaled(p.Xi0)
	c0, dc := sg.Centers[0], sg.CellWidth()
	rays := p.Axis()

	f := &Field{
		N: p.Rays, Xi0: p.Xi0,
		Xs: rays, Ys: append([]float64{}, rays...),
	}
	n := sg.N
	f.AlphaX = interpolate.NewUniform2D(p.Interp, c0, dc, n, c0, dc, n, ax).
		EvalGrid(f.Xs, f.Ys)
	f.AlphaY = interpolate.NewUniform2D(p.Interp, c0, dc, n, c0, dc, n, ay).
		EvalGrid(f.Xs, f.Ys)
	return f
}

// RayField computes the deflection field of kappa and samples it on a ray
// grid.
func RayField(kappa []float64, g *geom.Grid, p RayParams, s Solver) *Field {
	ax, ay := Deflect(kappa, g, p.Xi0, s)
	return Resample(ax, ay, g, p)
}

// Spacing returns the dimensionless distance between neighbouring rays.
func (f *Field) Spacing() (dx, dy float64) {
	return f.Xs[1] - f.Xs[0], f.Ys[1] - f.Ys[0]
}

// SourcePositions maps every ray back to the source plane, beta = theta -
// alpha.
func (f *Field) SourcePositions() (bx, by []float64) {
	bx, by = make([]float64, len(f.AlphaX)), make([]float64, len(f.AlphaY))
	for i := 0; i < f.N; i++ {
		for j := 0; j < f.N; j++ {
			idx := i*f.N + j
			bx[idx] = f.Xs[i] - f.AlphaX[idx]
			by[idx] = f.Ys[j] - f.AlphaY[idx]
		}
	}
	return bx, by
}
