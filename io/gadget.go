package io

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strings"

	"github.com/phil-mansfield/lensmap/cosmo"
	"github.com/phil-mansfield/lensmap/geom"
)

const (
	gadgetHeaderSize = 256
	gadgetLabelSize  = 8

	// CosmologyTolerance is the relative difference between a snapshot's
	// cosmological parameters and the run's which is reported.
	CosmologyTolerance = 1e-3
)

var (
	// ErrNotSnapFormat2 is returned for Gadget files without block labels.
	ErrNotSnapFormat2 = errors.New("not a SnapFormat=2 Gadget file")
)

// GadgetHeader is the formatting for meta-information used by Gadget 2.
type GadgetHeader struct {
	NPart                                     [6]uint32
	Mass                                      [6]float64
	Time, Redshift                            float64
	FlagSfr, FlagFeedback                     int32
	NPartTotal                                [6]uint32
	FlagCooling, NumFiles                     int32
	BoxSize, Omega0, OmegaLambda, HubbleParam float64
	FlagStellarAge, HashTabSize               int32

	Padding [88]byte
}

// Cosmology returns the cosmological parameters stored in the header.
func (gh *GadgetHeader) Cosmology() CosmologyHeader {
	return CosmologyHeader{
		Z: gh.Redshift, OmegaM: gh.Omega0,
		OmegaL: gh.OmegaLambda, H100: gh.HubbleParam,
	}
}

// CosmologyHeader contains information describing the cosmological
// context in which the simulation was run.
type CosmologyHeader struct {
	Z      float64
	OmegaM float64
	OmegaL float64
	H100   float64
}

// Matches returns true if the H0 and OmegaM of c agree with the header to a
// relative tolerance of tol. Headers without a Hubble parameter always match.
func (ch CosmologyHeader) Matches(c *cosmo.FlatLambdaCDM, tol float64) bool {
	if ch.H100 <= 0 {
		return true
	}
	h := c.H0 / 100
	return math.Abs(ch.H100-h) <= tol*h &&
		math.Abs(ch.OmegaM-c.OmegaM) <= tol*c.OmegaM
}

// blockInfo is the location of the payload of a labelled block.
type blockInfo struct {
	offset, size int64
}

// gadgetFile is an open SnapFormat=2 file along with its block table.
type gadgetFile struct {
	f      *os.File
	order  binary.ByteOrder
	hd     GadgetHeader
	blocks map[string]blockInfo
}

// endianness finds the byte order of a Gadget file from its first record
// marker, which is always 8 for SnapFormat=2.
func endianness(f io.ReaderAt) (binary.ByteOrder, error) {
	buf := make([]byte, 4)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	switch {
	case binary.LittleEndian.Uint32(buf) == gadgetLabelSize:
		return binary.LittleEndian, nil
	case binary.BigEndian.Uint32(buf) == gadgetLabelSize:
		return binary.BigEndian, nil
	}
	return nil, ErrNotSnapFormat2
}

func openGadget(path string) (*gadgetFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	gf := &gadgetFile{f: f, blocks: map[string]blockInfo{}}
	if gf.order, err = endianness(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err = gf.scanBlocks(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	head, ok := gf.blocks["HEAD"]
	if !ok || head.size != gadgetHeaderSize {
		f.Close()
		return nil, fmt.Errorf("%s: missing or malformed HEAD block", path)
	}
	r := io.NewSectionReader(f, head.offset, head.size)
	if err = binary.Read(r, gf.order, &gf.hd); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return gf, nil
}

func (gf *gadgetFile) Close() error { return gf.f.Close() }

// scanBlocks records the location of every labelled block in the file.
func (gf *gadgetFile) scanBlocks() error {
	if _, err := gf.f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	for {
		var label struct {
			Pre  uint32
			Name [4]byte
			Next uint32
			Post uint32
		}
		err := binary.Read(gf.f, gf.order, &label)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		} else if label.Pre != gadgetLabelSize || label.Post != gadgetLabelSize {
			return ErrNotSnapFormat2
		}

		var size uint32
		if err := binary.Read(gf.f, gf.order, &size); err != nil {
			return err
		}
		offset, err := gf.f.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		gf.blocks[string(label.Name[:])] = blockInfo{offset, int64(size)}

		if _, err := gf.f.Seek(int64(size)+4, io.SeekCurrent); err != nil {
			return err
		}
	}
}

// readFloats reads n values, starting at the skip-th value, from a block of
// float32 or float64 values holding total values.
func (gf *gadgetFile) readFloats(name string, skip, n, total int) ([]float64, error) {
	b, ok := gf.blocks[name]
	if !ok {
		return nil, fmt.Errorf("block '%s' not found", strings.TrimSpace(name))
	}
	if total == 0 || b.size%int64(total) != 0 {
		return nil, fmt.Errorf(
			"block '%s' has size %d, which does not hold %d values",
			strings.TrimSpace(name), b.size, total,
		)
	}
	elem := b.size / int64(total)

	r := io.NewSectionReader(gf.f, b.offset+int64(skip)*elem, int64(n)*elem)
	out := make([]float64, n)
	switch elem {
	case 4:
		buf := make([]float32, n)
		if err := binary.Read(r, gf.order, buf); err != nil {
			return nil, err
		}
		for i := range buf {
			out[i] = float64(buf[i])
		}
	case 8:
		if err := binary.Read(r, gf.order, out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf(
			"block '%s' has %d-byte values", strings.TrimSpace(name), elem,
		)
	}
	return out, nil
}

// positions returns the positions of the particles of type sp in file units.
func (gf *gadgetFile) positions(sp Species) ([]float64, error) {
	skip, total := 0, 0
	for t, n := range gf.hd.NPart {
		if t < int(sp) {
			skip += int(n)
		}
		total += int(n)
	}
	return gf.readFloats("POS ", 3*skip, 3*int(gf.hd.NPart[sp]), 3*total)
}

// masses returns the masses of the particles of type sp in file units. Types
// with a fixed mass in the header have no entries in the MASS block.
func (gf *gadgetFile) masses(sp Species) ([]float64, error) {
	n := int(gf.hd.NPart[sp])
	if m := gf.hd.Mass[sp]; m != 0 {
		out := make([]float64, n)
		for i := range out {
			out[i] = m
		}
		return out, nil
	}

	skip, total := 0, 0
	for t, nt := range gf.hd.NPart {
		if gf.hd.Mass[t] != 0 {
			continue
		}
		if t < int(sp) {
			skip += int(nt)
		}
		total += int(nt)
	}
	return gf.readFloats("MASS", skip, n, total)
}

// ages returns the formation times of star particles. Wind particles have
// negative ages.
func (gf *gadgetFile) ages() ([]float64, error) {
	n := int(gf.hd.NPart[Star])
	return gf.readFloats("AGE ", 0, n, n)
}

// ReadGadgetHeader reads the header of a SnapFormat=2 Gadget file.
func ReadGadgetHeader(path string) (*GadgetHeader, error) {
	gf, err := openGadget(path)
	if err != nil {
		return nil, err
	}
	defer gf.Close()
	hd := gf.hd
	return &hd, nil
}

// GadgetReader reads particles from SnapFormat=2 Gadget-2 snapshots.
type GadgetReader struct {
	// SnapFormat is a printf format string where every verb is replaced by
	// the snapshot index.
	SnapFormat string
	// LengthScale converts file lengths to Mpc and MassUnit converts file
	// masses to Msun/h.
	LengthScale, MassUnit float64
	// Cosmo is optional. If set, the first file read is checked against it
	// and a mismatch is logged.
	Cosmo *cosmo.FlatLambdaCDM

	checked bool
}

var _ ParticleReader = &GadgetReader{}

func NewGadgetReader(snapFormat string, lengthScale, massUnit float64) *GadgetReader {
	return &GadgetReader{
		SnapFormat: snapFormat, LengthScale: lengthScale, MassUnit: massUnit,
	}
}

// SnapPath returns the name of a snapshot.
func (r *GadgetReader) SnapPath(snap int) string {
	verbs := strings.Count(r.SnapFormat, "%") - 2*strings.Count(r.SnapFormat, "%%")
	args := make([]interface{}, verbs)
	for i := range args {
		args[i] = snap
	}
	return fmt.Sprintf(r.SnapFormat, args...)
}

// Files returns every file of a snapshot. Multi-file snapshots are stored as
// <name>.0, <name>.1, ...
func (r *GadgetReader) Files(snap int) ([]string, error) {
	base := r.SnapPath(snap)
	if PathExists(base) {
		return []string{base}, nil
	}

	first := base + ".0"
	if !PathExists(first) {
		return nil, fmt.Errorf("snapshot %d at %s: %w", snap, base, os.ErrNotExist)
	}
	hd, err := ReadGadgetHeader(first)
	if err != nil {
		return nil, err
	}

	n := int(hd.NumFiles)
	if n < 1 {
		n = 1
	}
	files := make([]string, n)
	for i := range files {
		files[i] = fmt.Sprintf("%s.%d", base, i)
	}
	return files, nil
}

// Read reads every particle of type sp in a snapshot. Star particles with
// negative ages are wind particles and are dropped.
func (r *GadgetReader) Read(snap int, sp Species) (*ParticleSet, error) {
	files, err := r.Files(snap)
	if err != nil {
		return nil, err
	}

	ps := &ParticleSet{Species: sp, Snap: snap}
	for _, file := range files {
		if err := r.readFile(file, ps); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

func (r *GadgetReader) readFile(path string, ps *ParticleSet) error {
	gf, err := openGadget(path)
	if err != nil {
		return err
	}
	defer gf.Close()
	r.checkCosmology(path, &gf.hd)

	sp := ps.Species
	if gf.hd.NPart[sp] == 0 {
		return nil
	}

	pos, err := gf.positions(sp)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	ms, err := gf.masses(sp)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var ages []float64
	if sp == Star {
		if _, ok := gf.blocks["AGE "]; ok {
			if ages, err = gf.ages(); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	h := gf.hd.HubbleParam
	if h == 0 {
		h = 1
	}
	mScale := r.MassUnit / h

	for i := range ms {
		if ages != nil && ages[i] < 0 {
			continue
		}
		ps.Xs = append(ps.Xs, geom.Vec{
			float32(pos[3*i] * r.LengthScale),
			float32(pos[3*i+1] * r.LengthScale),
			float32(pos[3*i+2] * r.LengthScale),
		})
		ps.Ms = append(ps.Ms, ms[i]*mScale)
	}

	return nil
}

func (r *GadgetReader) checkCosmology(path string, hd *GadgetHeader) {
	if r.Cosmo == nil || r.checked {
		return
	}
	r.checked = true

	if ch := hd.Cosmology(); !ch.Matches(r.Cosmo, CosmologyTolerance) {
		log.Printf(
			"!!! %s has h = %g and Omega_m = %g, but the run uses h = %g "+
				"and Omega_m = %g.",
			path, ch.H100, ch.OmegaM, r.Cosmo.H0/100, r.Cosmo.OmegaM,
		)
	}
}
