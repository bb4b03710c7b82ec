package io

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/cdf"

	"github.com/phil-mansfield/lensmap/geom"
)

// CurveLayout is the way critical curves are stored in an output file.
type CurveLayout int

const (
	// FixedShape stores every critical curve in a single
	// crit_curves[ncrit, npts, 2] array. It can only be used when every curve
	// has the same number of vertices.
	FixedShape CurveLayout = iota
	// NamedSequence stores curve k in its own crit_curve_<k>[n_k, 2] array.
	NamedSequence
)

func (l CurveLayout) String() string {
	switch l {
	case FixedShape:
		return "fixed"
	case NamedSequence:
		return "named"
	}
	panic(":3")
}

var (
	// ErrOutputExists is returned when a sink would overwrite a file.
	ErrOutputExists = errors.New("output file already exists")
)

// Record is everything written out for a single lens/source pair. Maps on the
// surface density grid have Cells^2 values and maps on the ray grid have
// Rays^2 values, both stored as vals[ix*n + iy]. Curve vertices are in Mpc.
type Record struct {
	RunID            string
	HaloID, SourceID int64
	Snap             int
	ZLens, ZSource   float64
	HaloPos          geom.Vec
	Rvir             float64
	SigmaCrit        float64

	FOV   float64
	Cells int
	// Grid holds the cell centres of the surface density grid in Mpc.
	Grid []float64
	// Sigma holds the surface density, Msun/Mpc^2, of each projected species.
	Sigma map[Species][]float64
	Kappa []float64

	Rays int
	Xi0  float64
	// RayAxis holds ray positions in units of Xi0.
	RayAxis                []float64
	AlphaX, AlphaY         []float64
	DetA, LambdaT, LambdaR []float64
	Mag                    []float64
	A11, A12, A21, A22     []float64
	// RayKappa is the convergence recovered from the Jacobian on the ray
	// grid.
	RayKappa, Gamma1, Gamma2, Gamma []float64
	// SourceX and SourceY are the source plane positions of every ray in
	// units of Xi0.
	SourceX, SourceY []float64

	Critical       []geom.Curve
	Tangential     geom.Curve
	Area           float64
	EinsteinRadius float64
}

// FileName returns the base name of the record's output file.
func (rec *Record) FileName() string {
	return fmt.Sprintf("LM_L%d_S%d.nc", rec.HaloID, rec.SourceID)
}

// Sink receives finished records.
type Sink interface {
	Write(rec *Record) error
}

// Layout chooses the layout a set of curves is written with. FixedShape falls
// back to NamedSequence when the curves have different lengths.
func Layout(pref CurveLayout, curves []geom.Curve) CurveLayout {
	if pref == NamedSequence {
		return NamedSequence
	}
	for i := 1; i < len(curves); i++ {
		if len(curves[i]) != len(curves[0]) {
			return NamedSequence
		}
	}
	return FixedShape
}

// NetCDFSink writes each record to its own NetCDF file in Dir.
type NetCDFSink struct {
	Dir       string
	Layout    CurveLayout
	Overwrite bool
}

var _ Sink = &NetCDFSink{}

// Path returns the file a record will be written to.
func (s *NetCDFSink) Path(rec *Record) string {
	return filepath.Join(s.Dir, rec.FileName())
}

// Exists returns true if the output for the given pair has already been
// written.
func (s *NetCDFSink) Exists(haloID, srcID int64) bool {
	rec := &Record{HaloID: haloID, SourceID: srcID}
	return PathExists(s.Path(rec))
}

func (s *NetCDFSink) Write(rec *Record) error {
	path := s.Path(rec)
	if !s.Overwrite && PathExists(path) {
		return fmt.Errorf("%s: %w", path, ErrOutputExists)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := WriteRecord(f, rec, s.Layout); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// variable is a single float64 array in an output file.
type variable struct {
	name string
	dims []string
	data []float64
}

// WriteRecord writes rec to w in the NetCDF classic format.
func WriteRecord(w *os.File, rec *Record, pref CurveLayout) error {
	layout := Layout(pref, rec.Critical)

	dimNames := []string{"cell_x", "cell_y", "ray_x", "ray_y", "xy"}
	dimLens := []int{rec.Cells, rec.Cells, rec.Rays, rec.Rays, 2}
	vars := []variable{
		{"Grid", []string{"cell_x"}, rec.Grid},
		{"RaysPos", []string{"ray_x"}, rec.RayAxis},
	}

	for _, sp := range ProjectedSpecies {
		sigma, ok := rec.Sigma[sp]
		if !ok {
			continue
		}
		vars = append(vars, variable{
			sigmaName(sp), []string{"cell_x", "cell_y"}, sigma,
		})
	}
	vars = append(vars, variable{"kappa", []string{"cell_x", "cell_y"}, rec.Kappa})

	for _, m := range rec.rayMaps() {
		vars = append(vars, variable{m.name, []string{"ray_x", "ray_y"}, *m.data})
	}

	// Zero-length dimensions are record dimensions in NetCDF, so empty
	// curves are left out entirely.
	switch {
	case len(rec.Critical) == 0:
	case layout == FixedShape:
		dimNames = append(dimNames, "ncrit", "npts")
		dimLens = append(dimLens, len(rec.Critical), len(rec.Critical[0]))
		vars = append(vars, variable{
			"crit_curves", []string{"ncrit", "npts", "xy"},
			flattenCurves(rec.Critical...),
		})
	default:
		for k, c := range rec.Critical {
			dim := fmt.Sprintf("crit_n_%d", k)
			dimNames = append(dimNames, dim)
			dimLens = append(dimLens, len(c))
			vars = append(vars, variable{
				fmt.Sprintf("crit_curve_%d", k), []string{dim, "xy"},
				flattenCurves(c),
			})
		}
	}
	if len(rec.Tangential) > 0 {
		dimNames = append(dimNames, "n_tangential")
		dimLens = append(dimLens, len(rec.Tangential))
		vars = append(vars, variable{
			"tangential_critical_curve", []string{"n_tangential", "xy"},
			flattenCurves(rec.Tangential),
		})
	}

	for _, v := range vars {
		n := 1
		for _, d := range v.dims {
			n *= dimLens[indexOf(dimNames, d)]
		}
		if len(v.data) != n {
			return fmt.Errorf(
				"variable %s has %d values, but its dimensions hold %d",
				v.name, len(v.data), n,
			)
		}
	}

	h := cdf.NewHeader(dimNames, dimLens)
	h.AddAttribute("", "comment", "lensmap lensing observables")
	h.AddAttribute("", "run_id", rec.RunID)
	h.AddAttribute("", "halo_id", strconv.FormatInt(rec.HaloID, 10))
	h.AddAttribute("", "source_id", strconv.FormatInt(rec.SourceID, 10))
	h.AddAttribute("", "snap", []int32{int32(rec.Snap)})
	h.AddAttribute("", "zl", []float64{rec.ZLens})
	h.AddAttribute("", "zs", []float64{rec.ZSource})
	h.AddAttribute("", "halo_pos", []float64{
		float64(rec.HaloPos[0]), float64(rec.HaloPos[1]), float64(rec.HaloPos[2]),
	})
	h.AddAttribute("", "rvir", []float64{rec.Rvir})
	h.AddAttribute("", "sigma_crit", []float64{rec.SigmaCrit})
	h.AddAttribute("", "fov", []float64{rec.FOV})
	h.AddAttribute("", "xi0", []float64{rec.Xi0})
	h.AddAttribute("", "ncrit", []int32{int32(len(rec.Critical))})
	h.AddAttribute("", "n_tangential", []int32{int32(len(rec.Tangential))})
	h.AddAttribute("", "curve_layout", layout.String())
	h.AddAttribute("", "area", []float64{rec.Area})
	h.AddAttribute("", "einstein_radius", []float64{rec.EinsteinRadius})

	for _, v := range vars {
		h.AddVariable(v.name, v.dims, []float64{0})
	}
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return err
	}

	for _, v := range vars {
		end := f.Header.Lengths(v.name)
		start := make([]int, len(end))
		if _, err := f.Writer(v.name, start, end).Write(v.data); err != nil {
			return fmt.Errorf("writing variable %s: %w", v.name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

// rayMap is a map on the ray grid and the name it is stored under.
type rayMap struct {
	name string
	data *[]float64
}

func (rec *Record) rayMaps() []rayMap {
	return []rayMap{
		{"alpha_x", &rec.AlphaX}, {"alpha_y", &rec.AlphaY},
		{"detA", &rec.DetA}, {"lambda_t", &rec.LambdaT}, {"lambda_r", &rec.LambdaR},
		{"mag", &rec.Mag},
		{"A11", &rec.A11}, {"A12", &rec.A12}, {"A21", &rec.A21}, {"A22", &rec.A22},
		{"kappa_rays", &rec.RayKappa},
		{"gamma1", &rec.Gamma1}, {"gamma2", &rec.Gamma2}, {"gamma", &rec.Gamma},
		{"source_x", &rec.SourceX}, {"source_y", &rec.SourceY},
	}
}

// ReadRecord reads a file written by WriteRecord.
func ReadRecord(path string) (*Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := cdf.Open(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rec, err := readRecordHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	read := func(name string) ([]float64, error) {
		n := 1
		for _, l := range f.Header.Lengths(name) {
			n *= l
		}
		buf := make([]float64, n)
		if _, err := f.Reader(name, nil, nil).Read(buf); err != nil {
			return nil, fmt.Errorf("%s: reading %s: %w", path, name, err)
		}
		return buf, nil
	}

	rayMaps := map[string]*[]float64{}
	for _, m := range rec.rayMaps() {
		rayMaps[m.name] = m.data
	}

	names := f.Header.Variables()
	sort.Strings(names)
	rec.Sigma = map[Species][]float64{}
	for _, name := range names {
		vals, err := read(name)
		if err != nil {
			return nil, err
		}

		if data, ok := rayMaps[name]; ok {
			*data = vals
			continue
		}

		switch {
		case name == "Grid":
			rec.Grid = vals
			rec.Cells = len(vals)
		case name == "RaysPos":
			rec.RayAxis = vals
			rec.Rays = len(vals)
		case name == "kappa":
			rec.Kappa = vals
		case name == "tangential_critical_curve":
			rec.Tangential = unflattenCurve(vals)
		case name == "crit_curves":
			dims := f.Header.Lengths(name)
			npts := dims[1]
			for k := 0; k < dims[0]; k++ {
				rec.Critical = append(
					rec.Critical, unflattenCurve(vals[2*k*npts:2*(k+1)*npts]),
				)
			}
		case strings.HasSuffix(name, "_sigma"):
			sp, ok := SpeciesFromString(strings.TrimSuffix(name, "_sigma"))
			if !ok {
				return nil, fmt.Errorf("%s: unknown map '%s'", path, name)
			}
			rec.Sigma[sp] = vals
		}
	}

	// Named curves are ordered by index, not by name.
	if len(rec.Critical) == 0 {
		n := attrInt(f, "ncrit")
		for k := 0; k < n; k++ {
			name := fmt.Sprintf("crit_curve_%d", k)
			vals, err := read(name)
			if err != nil {
				return nil, err
			}
			rec.Critical = append(rec.Critical, unflattenCurve(vals))
		}
	}

	return rec, nil
}

// ReadRecordHeader reads only the scalar attributes of an output file.
func ReadRecordHeader(path string) (*Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := cdf.Open(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rec, err := readRecordHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

func readRecordHeader(f *cdf.File) (*Record, error) {
	rec := &Record{}
	var err error

	rec.RunID, _ = f.Header.GetAttribute("", "run_id").(string)
	if rec.HaloID, err = attrID(f, "halo_id"); err != nil {
		return nil, err
	}
	if rec.SourceID, err = attrID(f, "source_id"); err != nil {
		return nil, err
	}

	rec.Snap = attrInt(f, "snap")
	rec.ZLens = attrFloat(f, "zl")
	rec.ZSource = attrFloat(f, "zs")
	if pos, ok := f.Header.GetAttribute("", "halo_pos").([]float64); ok && len(pos) == 3 {
		rec.HaloPos = geom.Vec{float32(pos[0]), float32(pos[1]), float32(pos[2])}
	}
	rec.Rvir = attrFloat(f, "rvir")
	rec.SigmaCrit = attrFloat(f, "sigma_crit")
	rec.FOV = attrFloat(f, "fov")
	rec.Xi0 = attrFloat(f, "xi0")
	rec.Area = attrFloat(f, "area")
	rec.EinsteinRadius = attrFloat(f, "einstein_radius")

	return rec, nil
}

func attrID(f *cdf.File, name string) (int64, error) {
	s, ok := f.Header.GetAttribute("", name).(string)
	if !ok {
		return 0, fmt.Errorf("missing attribute '%s'", name)
	}
	return strconv.ParseInt(s, 10, 64)
}

func attrFloat(f *cdf.File, name string) float64 {
	x, ok := f.Header.GetAttribute("", name).([]float64)
	if !ok || len(x) == 0 {
		return 0
	}
	return x[0]
}

func attrInt(f *cdf.File, name string) int {
	x, ok := f.Header.GetAttribute("", name).([]int32)
	if !ok || len(x) == 0 {
		return 0
	}
	return int(x[0])
}

func sigmaName(sp Species) string {
	return fmt.Sprintf("%s_sigma", strings.ToUpper(sp.String()))
}

func flattenCurves(cs ...geom.Curve) []float64 {
	n := 0
	for _, c := range cs {
		n += 2 * len(c)
	}
	out := make([]float64, 0, n)
	for _, c := range cs {
		for _, p := range c {
			out = append(out, p[0], p[1])
		}
	}
	return out
}

func unflattenCurve(vals []float64) geom.Curve {
	c := make(geom.Curve, len(vals)/2)
	for i := range c {
		c[i] = [2]float64{vals[2*i], vals[2*i+1]}
	}
	return c
}

func indexOf(xs []string, x string) int {
	for i := range xs {
		if xs[i] == x {
			return i
		}
	}
	return -1
}
