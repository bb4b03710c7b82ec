package io

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/gcfg.v1"

	"github.com/phil-mansfield/lensmap/cosmo"
	"github.com/phil-mansfield/lensmap/density"
	"github.com/phil-mansfield/lensmap/lens"
	"github.com/phil-mansfield/lensmap/math/interpolate"
)

const (
	ExampleRunFile = `[Run]

#######################
# Required Parameters #
#######################

# printf format string for snapshot files. Every %d is replaced by the
# snapshot index (e.g. sims/snapdir_%03d/snap_%03d). Multi-file snapshots are
# read from <name>.0, <name>.1, ... if <name> itself does not exist.
SnapFormat = path/to/snapdir_%03d/snap_%03d

# Whitespace-separated text catalogs. Lens columns are
#     ID Snap Z X Y Z Radius
# with positions in Mpc (after LengthScale has been applied to the snapshot
# units) and Radius in Mpc. Source columns are
#     HaloID SourceID Z
LensCatalog = path/to/lenses.txt
SourceCatalog = path/to/sources.txt

# Directory which LM_L<halo>_S<source>.nc files will be written to.
Output = path/to/output/dir

# Number of cells on one side of the surface density grid.
Cells = 512

# Number of rays on one side of the ray grid.
Rays = 1024

#######################
# Optional Parameters #
#######################

# Width of the ray grid in Mpc. Defaults to the field of view of each halo.
# RayWidth = 0.2

# Field of view of each map is FOVFactor times the halo radius. Default 0.3.
# FOVFactor = 0.3

# Length scale, in Mpc, used to make lens plane coordinates dimensionless.
# Default 0.001.
# Xi0 = 0.001

# Zero padding factor for the Fourier deflection solver. Default 4.
# PadFac = 4

# Interpolation used to sample deflections on the ray grid, one of
# [ cubic | linear ]. Default cubic.
# Interpolation = cubic

# Conversion from snapshot units to Mpc and to Msun/h. Defaults are 1 and
# 1e10.
# LengthScale = 0.001
# MassUnit = 1e10

# Line of sight, one of [ X | Y | Z ]. Default Z.
# ProjectionAxis = Z

# Set if the Radius column of LensCatalog is a mass in Msun instead. It is
# converted with the given definition, one of [ RVir | R200c | R200m | R500c ].
# RadiusFromMass = R200c

# Flat LCDM parameters. Defaults are Planck 2015.
# H0 = 67.74
# OmegaM = 0.3075

# Halos with fewer projected particles than this are skipped. Default 100.
# MinParticles = 100

# Number of halo blocks processed concurrently. Default 1.
# Workers = 4

# Rewrite existing output files and ignore memoized deflection maps.
# Overwrite = false

# Directory of the deflection map cache. No caching if unset.
# MemoDir = path/to/memo

# Critical curve storage, one of [ auto | named ]. auto stores all curves in
# one array when they have the same length.
# CurveLayout = auto

# Output files which are useful for profiling and debugging. Generally, there
# isn't a reason to use these unless something goes wrong.
# MetricsFile = metrics.prom
# ProfileFile = prof.out
# LogFile = log.out

# Each [Species] section sets how one particle type is projected. Mode is one
# of [ histogram | adaptive ]; adaptive requires NeighbourNo and SmoothFac.
# Species which are not listed are not projected.
[Species "dm"]
Mode = histogram
NeighbourNo = 32
SmoothFac = 0.5

[Species "gas"]
Mode = histogram
NeighbourNo = 32
SmoothFac = 0.5

[Species "star"]
Mode = histogram
NeighbourNo = 8
SmoothFac = 0.5`
)

var validate = validator.New()

type RunConfig struct {
	// Required
	SnapFormat    string `validate:"required"`
	LensCatalog   string `validate:"required"`
	SourceCatalog string `validate:"required"`
	Output        string `validate:"required"`
	Cells         int    `validate:"gt=0"`
	Rays          int    `validate:"gte=3"`

	// Optional
	RayWidth       float64 `validate:"gte=0"`
	FOVFactor      float64 `validate:"gt=0"`
	Xi0            float64 `validate:"gt=0"`
	PadFac         float64 `validate:"gte=1"`
	Interpolation  string
	LengthScale    float64 `validate:"gt=0"`
	MassUnit       float64 `validate:"gt=0"`
	ProjectionAxis string  `validate:"oneof=X Y Z x y z"`
	RadiusFromMass string
	H0             float64 `validate:"gt=0"`
	OmegaM         float64 `validate:"gt=0,lte=1"`
	MinParticles   int     `validate:"gte=0"`
	Workers        int     `validate:"gte=1"`
	Overwrite      bool
	MemoDir        string
	CurveLayout    string `validate:"oneof=auto named"`

	MetricsFile, LogFile, ProfileFile string
}

type SpeciesConfig struct {
	Mode        string  `validate:"required"`
	NeighbourNo int     `validate:"gte=0"`
	SmoothFac   float64 `validate:"gte=0"`
}

type RunWrapper struct {
	Run     RunConfig
	Species map[string]*SpeciesConfig
}

func DefaultRunWrapper() *RunWrapper {
	rc := RunConfig{}
	rc.FOVFactor = 0.3
	rc.Xi0 = lens.DefaultXi0
	rc.PadFac = lens.DefaultPadFac
	rc.Interpolation = "cubic"
	rc.LengthScale = 1
	rc.MassUnit = 1e10
	rc.ProjectionAxis = "Z"
	rc.H0 = cosmo.Planck15H0
	rc.OmegaM = cosmo.Planck15OmegaM
	rc.MinParticles = 100
	rc.Workers = 1
	rc.CurveLayout = "auto"
	return &RunWrapper{Run: rc}
}

// ReadRunConfig reads and validates a [Run] configuration file.
func ReadRunConfig(fname string) (*RunWrapper, error) {
	wrap := DefaultRunWrapper()
	if err := gcfg.ReadFileInto(wrap, fname); err != nil {
		return nil, err
	}
	if err := wrap.CheckInit(); err != nil {
		return nil, err
	}
	return wrap, nil
}

// ReadRunConfigString is ReadRunConfig for a configuration held in memory.
func ReadRunConfigString(str string) (*RunWrapper, error) {
	wrap := DefaultRunWrapper()
	if err := gcfg.ReadStringInto(wrap, str); err != nil {
		return nil, err
	}
	if err := wrap.CheckInit(); err != nil {
		return nil, err
	}
	return wrap, nil
}

// CheckInit validates every section of the configuration.
func (wrap *RunWrapper) CheckInit() error {
	con := &wrap.Run
	if err := validate.Struct(con); err != nil {
		return fmt.Errorf("Invalid [Run] section: %w", err)
	}

	if !con.ValidInterpolation() {
		return fmt.Errorf("Invalid 'Interpolation' value, '%s'.", con.Interpolation)
	} else if !con.ValidRadiusFromMass() {
		return fmt.Errorf("Invalid 'RadiusFromMass' value, '%s'.", con.RadiusFromMass)
	} else if !con.ValidSnapFormat() {
		return fmt.Errorf("'SnapFormat' value, '%s', contains no %%d.", con.SnapFormat)
	}

	return wrap.CheckSpecies()
}

// CheckSpecies validates the [Species] sections. Each projected particle type
// may be described by at most one section.
func (wrap *RunWrapper) CheckSpecies() error {
	if len(wrap.Species) == 0 {
		return fmt.Errorf("At least one [Species] section is required.")
	}
	seen := map[Species]string{}
	for _, name := range wrap.SpeciesNames() {
		if err := wrap.Species[name].CheckInit(name); err != nil {
			return err
		}
		sp, _ := SpeciesFromString(name)
		if prev, ok := seen[sp]; ok {
			return fmt.Errorf(
				"[Species \"%s\"] and [Species \"%s\"] both describe %s particles.",
				prev, name, sp,
			)
		}
		seen[sp] = name
	}
	return nil
}

func (con *RunConfig) ValidInterpolation() bool {
	_, err := interpolate.MethodFromString(con.Interpolation)
	return err == nil
}
func (con *RunConfig) ValidRadiusFromMass() bool {
	if con.RadiusFromMass == "" {
		return true
	}
	_, ok := cosmo.RadiusFromString(con.RadiusFromMass)
	return ok
}
func (con *RunConfig) ValidSnapFormat() bool {
	return strings.Contains(con.SnapFormat, "%")
}
func (con *RunConfig) ValidMemoDir() bool {
	return con.MemoDir != ""
}
func (con *RunConfig) ValidMetricsFile() bool {
	return con.MetricsFile != ""
}
func (con *RunConfig) ValidLogFile() bool {
	return con.LogFile != ""
}
func (con *RunConfig) ValidProfileFile() bool {
	return con.ProfileFile != ""
}

// Axes returns the two position components which span the image plane.
func (con *RunConfig) Axes() [2]int {
	switch strings.ToUpper(con.ProjectionAxis) {
	case "X":
		return [2]int{1, 2}
	case "Y":
		return [2]int{2, 0}
	}
	return [2]int{0, 1}
}

// Cosmology returns the flat LCDM cosmology described by con.
func (con *RunConfig) Cosmology() *cosmo.FlatLambdaCDM {
	return &cosmo.FlatLambdaCDM{H0: con.H0, OmegaM: con.OmegaM}
}

// RayParams returns the ray grid used for a map with the given field of view.
func (con *RunConfig) RayParams(fov float64) lens.RayParams {
	m, _ := interpolate.MethodFromString(con.Interpolation)
	width := con.RayWidth
	if width == 0 {
		width = fov
	}
	return lens.RayParams{Rays: con.Rays, Width: width, Xi0: con.Xi0, Interp: m}
}

// Layout returns the preferred critical curve layout.
func (con *RunConfig) Layout() CurveLayout {
	if con.CurveLayout == "named" {
		return NamedSequence
	}
	return FixedShape
}

// SpeciesNames returns the configured species in a fixed order.
func (wrap *RunWrapper) SpeciesNames() []string {
	names := make([]string, 0, len(wrap.Species))
	for name := range wrap.Species {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (sp *SpeciesConfig) CheckInit(name string) error {
	if s, ok := SpeciesFromString(name); !ok {
		return fmt.Errorf("Unrecognized species '%s'.", name)
	} else if !s.Projected() {
		return fmt.Errorf("Species '%s' can't be projected.", name)
	}
	if err := validate.Struct(sp); err != nil {
		return fmt.Errorf("Invalid [Species \"%s\"] section: %w", name, err)
	}
	p, err := sp.Params(1, 1, [2]int{0, 1})
	if err != nil {
		return fmt.Errorf("Invalid [Species \"%s\"] section: %w", name, err)
	}
	return p.Validate()
}

// Params returns the density estimation parameters for a map.
func (sp *SpeciesConfig) Params(fov float64, cells int, axes [2]int) (density.Params, error) {
	mode, err := density.ModeFromString(sp.Mode)
	if err != nil {
		return density.Params{}, err
	}
	return density.Params{
		FOV: fov, Cells: cells, Mode: mode,
		NeighbourNo: sp.NeighbourNo, SmoothFac: sp.SmoothFac,
		Axes: axes,
	}, nil
}
