package pipeline

import (
	"errors"

	"github.com/phil-mansfield/lensmap/io"
)

var (
	// ErrNoSource is returned for halos without any background sources.
	ErrNoSource = errors.New("no source for halo")
	// ErrInsufficientData is returned when a halo's map can't be trusted:
	// too few particles or a non-finite convergence.
	ErrInsufficientData = errors.New("insufficient data")
)

// SelectSource returns the source with the highest redshift. Ties go to the
// first such source.
func SelectSource(srcs []io.Source) (io.Source, error) {
	if len(srcs) == 0 {
		return io.Source{}, ErrNoSource
	}
	best := 0
	for i := range srcs {
		if srcs[i].Z > srcs[best].Z {
			best = i
		}
	}
	return srcs[best], nil
}
