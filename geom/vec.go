package geom

import (
	"math"
)

// Vec is a particle position.
type Vec [3]float32

// Sub returns v - u.
func (v Vec) Sub(u Vec) Vec {
	return Vec{v[0] - u[0], v[1] - u[1], v[2] - u[2]}
}

// ScaleSelf multiplies every component of v by k.
func (v *Vec) ScaleSelf(k float64) {
	for i := range v {
		v[i] = float32(float64(v[i]) * k)
	}
}

// Curve is an ordered sequence of points in the lens plane. Closed curves
// repeat their first point at the end.
type Curve [][2]float64

// Closed returns true if the curve ends where it begins.
func (c Curve) Closed() bool {
	if len(c) < 2 {
		return false
	}
	return c[0] == c[len(c)-1]
}

// Scale multiplies every vertex of the curve by k in place.
func (c Curve) Scale(k float64) {
	for i := range c {
		c[i][0] *= k
		c[i][1] *= k
	}
}

// Length returns the arc length of the curve.
func (c Curve) Length() float64 {
	sum := 0.0
	for i := 1; i < len(c); i++ {
		sum += math.Hypot(c[i][0]-c[i-1][0], c[i][1]-c[i-1][1])
	}
	return sum
}
