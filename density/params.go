package density

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is a surface density estimation method.
type Mode int

const (
	// Histogram bins particle masses directly onto the grid.
	Histogram Mode = iota
	// Adaptive smooths each particle with a Gaussian whose width follows its
	// distance to the k-th nearest neighbour.
	Adaptive
)

var (
	ErrMissingParam = errors.New("missing density parameter")
	ErrInvalidParam = errors.New("invalid density parameter")
)

func ModeFromString(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "histogram", "hist", "ngp":
		return Histogram, nil
	case "adaptive", "smooth", "smoothed":
		return Adaptive, nil
	}
	return Histogram, fmt.Errorf("'%s': %w", s, ErrInvalidParam)
}

func (m Mode) String() string {
	switch m {
	case Histogram:
		return "histogram"
	case Adaptive:
		return "adaptive"
	}
	panic(":3")
}

// Params configures a projection. Axes are the two position components
// which span the image plane; the line of sight is the third.
type Params struct {
	FOV   float64
	Cells int
	Mode  Mode

	NeighbourNo int
	SmoothFac   float64

	Axes [2]int
}

// DefaultParams returns histogram Params projecting along z.
func DefaultParams(fov float64, cells int) Params {
	return Params{FOV: fov, Cells: cells, Mode: Histogram, Axes: [2]int{0, 1}}
}

// Validate checks that every field required by p.Mode has been set.
func (p *Params) Validate() error {
	if p.Cells <= 0 {
		return fmt.Errorf("Cells = %d: %w", p.Cells, ErrInvalidParam)
	} else if !(p.FOV > 0) {
		return fmt.Errorf("FOV = %g: %w", p.FOV, ErrInvalidParam)
	}
	for _, ax := range p.Axes {
		if ax < 0 || ax > 2 {
			return fmt.Errorf("Axes = %v: %w", p.Axes, ErrInvalidParam)
		}
	}
	if p.Axes[0] == p.Axes[1] {
		return fmt.Errorf("Axes = %v: %w", p.Axes, ErrInvalidParam)
	}

	if p.Mode != Adaptive {
		return nil
	}

	if p.NeighbourNo == 0 {
		return fmt.Errorf("NeighbourNo: %w", ErrMissingParam)
	} else if p.SmoothFac == 0 {
		return fmt.Errorf("SmoothFac: %w", ErrMissingParam)
	} else if p.NeighbourNo < 2 {
		return fmt.Errorf("NeighbourNo = %d: %w", p.NeighbourNo, ErrInvalidParam)
	} else if p.SmoothFac < 0 {
		return fmt.Errorf("SmoothFac = %g: %w", p.SmoothFac, ErrInvalidParam)
	}
	return nil
}
