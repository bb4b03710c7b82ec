/*package cosmo computes the distances and densities of a flat ΛCDM universe,
along with the critical surface density used to normalize lensing maps.
*/
package cosmo

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/unit/constant"
)

const (
	// MpcMeters is the length of a megaparsec in meters.
	MpcMeters = 3.0856775814913673e22
	// MsunKg is the mass of the sun in kilograms.
	MsunKg = 1.988409870698051e30
	// ArcsecPerRadian converts radians to arcseconds.
	ArcsecPerRadian = 180 * 3600 / math.Pi

	// Planck15H0 and Planck15OmegaM are the default cosmological parameters.
	Planck15H0     = 67.74
	Planck15OmegaM = 0.3075

	quadPoints = 256
)

var (
	// SpeedOfLight is c in m/s.
	SpeedOfLight = float64(constant.LightSpeedInVacuum)
	// GravitationalConstant is G in m^3 / (kg s^2).
	GravitationalConstant = float64(constant.Gravitational)

	// ErrSourceBehindLens is returned when a source is not farther away than
	// the lens it is paired with.
	ErrSourceBehindLens = errors.New("source redshift is not larger than lens redshift")
)

// Distances gives angular diameter distances in Mpc.
type Distances interface {
	AngularDiameterDistance(z float64) float64
	AngularDiameterDistanceZ1Z2(z1, z2 float64) float64
}

// FlatLambdaCDM is a spatially flat universe containing matter and a
// cosmological constant. H0 is in km/s/Mpc.
type FlatLambdaCDM struct {
	H0, OmegaM float64
}

var _ Distances = &FlatLambdaCDM{}

// Planck15 returns the default cosmology.
func Planck15() *FlatLambdaCDM {
	return &FlatLambdaCDM{H0: Planck15H0, OmegaM: Planck15OmegaM}
}

// OmegaL returns the dark energy density parameter.
func (c *FlatLambdaCDM) OmegaL() float64 { return 1 - c.OmegaM }

// E returns H(z)/H0.
func (c *FlatLambdaCDM) E(z float64) float64 {
	a1 := 1 + z
	return math.Sqrt(c.OmegaM*a1*a1*a1 + c.OmegaL())
}

// HubbleDistance returns c/H0 in Mpc.
func (c *FlatLambdaCDM) HubbleDistance() float64 {
	return SpeedOfLight / 1e3 / c.H0
}

// ComovingDistance returns the line-of-sight comoving distance to z in Mpc.
func (c *FlatLambdaCDM) ComovingDistance(z float64) float64 {
	if z <= 0 {
		return 0
	}
	f := func(zz float64) float64 { return 1 / c.E(zz) }
	return c.HubbleDistance() * quad.Fixed(f, 0, z, quadPoints, nil, 0)
}

func (c *FlatLambdaCDM) AngularDiameterDistance(z float64) float64 {
	return c.ComovingDistance(z) / (1 + z)
}

// AngularDiameterDistanceZ1Z2 is the distance between z1 and z2 as seen from
// z2. This is only meaningful for z2 > z1.
func (c *FlatLambdaCDM) AngularDiameterDistanceZ1Z2(z1, z2 float64) float64 {
	return (c.ComovingDistance(z2) - c.ComovingDistance(z1)) / (1 + z2)
}

// RhoCritical returns the critical density at z in Msun/Mpc^3.
func (c *FlatLambdaCDM) RhoCritical(z float64) float64 {
	h := c.H0 * c.E(z) * 1e3 / MpcMeters // 1/s
	rho := 3 * h * h / (8 * math.Pi * GravitationalConstant) // kg/m^3
	return rho * MpcMeters * MpcMeters * MpcMeters / MsunKg
}

// RhoAverage returns the average matter density at z in Msun/Mpc^3.
func (c *FlatLambdaCDM) RhoAverage(z float64) float64 {
	a1 := 1 + z
	return c.OmegaM * a1 * a1 * a1 * c.RhoCritical(0)
}

// SigmaCritFactor returns c^2/(4 pi G) in Msun/Mpc.
func SigmaCritFactor() float64 {
	c2 := SpeedOfLight * SpeedOfLight
	return c2 / (4 * math.Pi * GravitationalConstant) * MpcMeters / MsunKg
}

// SigmaCrit returns the critical surface density, in Msun/Mpc^2, of a lens at
// zl for a source at zs.
func SigmaCrit(d Distances, zl, zs float64) (float64, error) {
	if !(zs > zl) {
		return 0, fmt.Errorf("zl = %g, zs = %g: %w", zl, zs, ErrSourceBehindLens)
	}
	dl := d.AngularDiameterDistance(zl)
	ds := d.AngularDiameterDistance(zs)
	dls := d.AngularDiameterDistanceZ1Z2(zl, zs)
	return SigmaCritFactor() * ds / (dl * dls), nil
}
