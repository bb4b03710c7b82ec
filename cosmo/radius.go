package cosmo

import (
	"math"
	"strings"
)

// Radius is a spherical overdensity definition used to relate halo masses
// and radii.
type Radius int

const (
	RVir Radius = iota
	R200c
	R200m
	R500c
)

func RadiusFromString(s string) (r Radius, ok bool) {
	s = strings.ToLower(s)
	switch s {
	case "200m", "r200m":
		return R200m, true
	case "vir", "rvir":
		return RVir, true
	case "200c", "r200c":
		return R200c, true
	case "500c", "r500c":
		return R500c, true
	}
	return RVir, false
}

func (r Radius) String() string {
	switch r {
	case R200m:
		return "R200m"
	case R200c:
		return "R200c"
	case R500c:
		return "R500c"
	case RVir:
		return "RVir"
	}
	panic(":3")
}

// Density returns the mean enclosed density, in Msun/Mpc^3, of a halo at z
// under this definition.
func (r Radius) Density(c *FlatLambdaCDM, z float64) float64 {
	switch r {
	case RVir:
		return 177.653 * c.RhoCritical(z)
	case R200c:
		return 200 * c.RhoCritical(z)
	case R200m:
		return 200 * c.RhoAverage(z)
	case R500c:
		return 500 * c.RhoCritical(z)
	}
	panic(":3")
}

// Radius writes the physical radii, in Mpc, of halos with masses ms (Msun) to
// out.
func (r Radius) Radius(c *FlatLambdaCDM, z float64, ms, out []float64) {
	factor := r.Density(c, z) * 4 * math.Pi / 3
	for i, m := range ms {
		out[i] = math.Cbrt(m / factor)
	}
}

// Mass is the inverse of Radius.
func (r Radius) Mass(c *FlatLambdaCDM, z float64, rs, out []float64) {
	factor := r.Density(c, z) * 4 * math.Pi / 3
	for i, r := range rs {
		out[i] = factor * (r * r * r)
	}
}
