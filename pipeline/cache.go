package pipeline

import (
	"log"

	"github.com/phil-mansfield/lensmap/io"
)

// ParticleCache holds the particles of the most recently used snapshot.
// Asking for a different snapshot replaces the cached one, so callers should
// visit halos in snapshot order.
type ParticleCache struct {
	reader  io.ParticleReader
	species []io.Species

	snap   int
	loaded bool
	sets   map[io.Species]*io.ParticleSet

	// Loads is the number of snapshots which have been read.
	Loads  int
	onLoad func(snap int)
}

// NewParticleCache returns a cache which reads the given species with r.
func NewParticleCache(r io.ParticleReader, species []io.Species) *ParticleCache {
	return &ParticleCache{reader: r, species: species}
}

// Get returns the particles of every cached species in a snapshot.
func (c *ParticleCache) Get(snap int) (map[io.Species]*io.ParticleSet, error) {
	if c.loaded && c.snap == snap {
		return c.sets, nil
	}

	log.Printf("Load Particle Data %d", snap)
	sets := map[io.Species]*io.ParticleSet{}
	for _, sp := range c.species {
		ps, err := c.reader.Read(snap, sp)
		if err != nil {
			c.loaded = false
			return nil, err
		}
		sets[sp] = ps
	}

	c.snap, c.sets, c.loaded = snap, sets, true
	c.Loads++
	if c.onLoad != nil {
		c.onLoad(snap)
	}
	return sets, nil
}
