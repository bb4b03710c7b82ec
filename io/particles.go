package io

import (
	"strings"

	"github.com/phil-mansfield/lensmap/geom"
)

// Species is a particle type. Values are Gadget-2 particle type indices.
type Species int

const (
	Gas  Species = 0
	DM   Species = 1
	Star Species = 4
	BH   Species = 5
)

// ProjectedSpecies are the species which contribute to a lensing map, in the
// order their maps are stored.
var ProjectedSpecies = []Species{DM, Gas, Star}

func SpeciesFromString(s string) (Species, bool) {
	switch strings.ToLower(s) {
	case "gas":
		return Gas, true
	case "dm":
		return DM, true
	case "star", "stars":
		return Star, true
	case "bh":
		return BH, true
	}
	return DM, false
}

// Projected returns true if sp contributes to lensing maps.
func (sp Species) Projected() bool {
	for _, p := range ProjectedSpecies {
		if p == sp {
			return true
		}
	}
	return false
}

func (sp Species) String() string {
	switch sp {
	case Gas:
		return "gas"
	case DM:
		return "dm"
	case Star:
		return "star"
	case BH:
		return "bh"
	}
	panic(":3")
}

// ParticleSet is the positions (Mpc) and masses (Msun) of every particle of
// one species in a snapshot.
type ParticleSet struct {
	Species Species
	Snap    int
	Xs      []geom.Vec
	Ms      []float64
}

// Len returns the number of particles in the set.
func (ps *ParticleSet) Len() int { return len(ps.Xs) }

// ParticleReader reads the particles of one species from a snapshot.
type ParticleReader interface {
	Read(snap int, sp Species) (*ParticleSet, error)
}
