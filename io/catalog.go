package io

import (
	"fmt"
	"sort"

	"github.com/phil-mansfield/table"

	"github.com/phil-mansfield/lensmap/cosmo"
	"github.com/phil-mansfield/lensmap/geom"
)

// Lens is a halo which lensing maps are made around. Pos is in Mpc and Rvir
// is the physical halo radius in Mpc.
type Lens struct {
	ID   int64
	Snap int
	Z    float64
	Pos  geom.Vec
	Rvir float64
}

// MassConversion turns the radius column of a lens catalog into radii when
// the column actually holds masses.
type MassConversion struct {
	Cosmo  *cosmo.FlatLambdaCDM
	Radius cosmo.Radius
}

// ReadLenses reads a whitespace-separated lens catalog with the columns
//
//	ID Snap Z X Y Z Radius
//
// If conv is non-nil the last column is a mass in Msun which is converted to
// a radius.
func ReadLenses(file string, conv *MassConversion) ([]Lens, error) {
	cols, err := table.ReadTable(file, []int{0, 1, 2, 3, 4, 5, 6}, nil)
	if err != nil {
		return nil, fmt.Errorf("reading lens catalog %s: %w", file, err)
	}

	ids, snaps, zs := cols[0], cols[1], cols[2]
	xs, ys, zPos, rs := cols[3], cols[4], cols[5], cols[6]

	lenses := make([]Lens, len(ids))
	for i := range lenses {
		lenses[i] = Lens{
			ID: int64(ids[i]), Snap: int(snaps[i]), Z: zs[i],
			Pos:  geom.Vec{float32(xs[i]), float32(ys[i]), float32(zPos[i])},
			Rvir: rs[i],
		}
	}

	if conv != nil {
		for i := range lenses {
			ms := []float64{lenses[i].Rvir}
			r := []float64{0}
			conv.Radius.Radius(conv.Cosmo, lenses[i].Z, ms, r)
			lenses[i].Rvir = r[0]
		}
	}

	return lenses, nil
}

// Source is a background source plane tied to a single halo.
type Source struct {
	HaloID, ID int64
	Z          float64
}

// SourceCatalog indexes sources by the halo they belong to. Sources keep
// their catalog order.
type SourceCatalog struct {
	byHalo map[int64][]Source
	n      int
}

// NewSourceCatalog builds a catalog from a list of sources.
func NewSourceCatalog(srcs []Source) *SourceCatalog {
	cat := &SourceCatalog{byHalo: map[int64][]Source{}, n: len(srcs)}
	for _, s := range srcs {
		cat.byHalo[s.HaloID] = append(cat.byHalo[s.HaloID], s)
	}
	return cat
}

// ReadSources reads a whitespace-separated source catalog with the columns
//
//	HaloID SourceID Z
func ReadSources(file string) (*SourceCatalog, error) {
	cols, err := table.ReadTable(file, []int{0, 1, 2}, nil)
	if err != nil {
		return nil, fmt.Errorf("reading source catalog %s: %w", file, err)
	}

	srcs := make([]Source, len(cols[0]))
	for i := range srcs {
		srcs[i] = Source{
			HaloID: int64(cols[0][i]), ID: int64(cols[1][i]), Z: cols[2][i],
		}
	}
	return NewSourceCatalog(srcs), nil
}

// ForHalo returns the sources of a halo in catalog order.
func (cat *SourceCatalog) ForHalo(id int64) []Source { return cat.byHalo[id] }

// Len returns the total number of sources.
func (cat *SourceCatalog) Len() int { return cat.n }

// HaloIDs returns every halo with at least one source, sorted.
func (cat *SourceCatalog) HaloIDs() []int64 {
	ids := make([]int64, 0, len(cat.byHalo))
	for id := range cat.byHalo {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
