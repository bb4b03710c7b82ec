package io

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/lensmap/cosmo"
	"github.com/phil-mansfield/lensmap/geom"
)

type testBlock struct {
	name string
	data interface{}
}

// writeGadget writes a SnapFormat=2 file with the given header and blocks.
func writeGadget(
	t *testing.T, path string, order binary.ByteOrder,
	hd *GadgetHeader, blocks ...testBlock,
) {
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	blocks = append([]testBlock{{"HEAD", hd}}, blocks...)
	for _, b := range blocks {
		size := uint32(binary.Size(b.data))
		label := struct {
			Pre  uint32
			Name [4]byte
			Next uint32
			Post uint32
		}{gadgetLabelSize, [4]byte{}, size + 8, gadgetLabelSize}
		copy(label.Name[:], fmt.Sprintf("%-4s", b.name))

		require.NoError(t, binary.Write(f, order, &label))
		require.NoError(t, binary.Write(f, order, size))
		require.NoError(t, binary.Write(f, order, b.data))
		require.NoError(t, binary.Write(f, order, size))
	}
}

func testHeader() *GadgetHeader {
	hd := &GadgetHeader{}
	hd.NPart = [6]uint32{2, 3, 0, 0, 2, 0}
	hd.NPartTotal = hd.NPart
	hd.Mass[DM] = 0.5
	hd.HubbleParam = 0.5
	hd.NumFiles = 1
	hd.Redshift = 0.25
	return hd
}

func testBlocks() []testBlock {
	pos := make([]float32, 3*7)
	for i := range pos {
		pos[i] = float32(i)
	}
	// gas, gas, star, star
	mass := []float32{1, 2, 3, 4}
	age := []float32{-1, 0.3}
	return []testBlock{{"POS", pos}, {"MASS", mass}, {"AGE", age}}
}

func TestGadgetHeaderSize(t *testing.T) {
	assert.Equal(t, gadgetHeaderSize, binary.Size(&GadgetHeader{}))
}

func TestGadgetRead(t *testing.T) {
	dir := t.TempDir()
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		path := filepath.Join(dir, fmt.Sprintf("snap_%03d", 7))
		writeGadget(t, path, order, testHeader(), testBlocks()...)

		r := NewGadgetReader(filepath.Join(dir, "snap_%03d"), 0.001, 1e10)

		tests := []struct {
			sp Species
			xs []geom.Vec
			ms []float64
		}{
			{Gas, []geom.Vec{{0, 1, 2}, {3, 4, 5}}, []float64{2e10, 4e10}},
			{DM, []geom.Vec{{6, 7, 8}, {9, 10, 11}, {12, 13, 14}},
				[]float64{1e10, 1e10, 1e10}},
			{Star, []geom.Vec{{18, 19, 20}}, []float64{8e10}},
			{BH, nil, nil},
		}

		for i, test := range tests {
			ps, err := r.Read(7, test.sp)
			require.NoError(t, err)
			require.Equal(t, len(test.xs), ps.Len(), "%d) %s", i, test.sp)
			for j := range test.xs {
				for k := 0; k < 3; k++ {
					exp := test.xs[j][k] * 0.001
					if math.Abs(float64(ps.Xs[j][k]-exp)) > 1e-6 {
						t.Errorf("%d) Expected x[%d][%d] = %g, got %g.",
							i, j, k, exp, ps.Xs[j][k])
					}
				}
				assert.InDelta(t, test.ms[j], ps.Ms[j], 1e-6*test.ms[j])
			}
		}
	}
}

func TestGadgetMultiFile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "snap_002")

	hd := testHeader()
	hd.NumFiles = 2
	writeGadget(t, base+".0", binary.LittleEndian, hd, testBlocks()...)
	writeGadget(t, base+".1", binary.LittleEndian, hd, testBlocks()...)

	r := NewGadgetReader(filepath.Join(dir, "snap_%03d"), 1, 1)
	files, err := r.Files(2)
	require.NoError(t, err)
	assert.Equal(t, []string{base + ".0", base + ".1"}, files)

	ps, err := r.Read(2, DM)
	require.NoError(t, err)
	assert.Equal(t, 6, ps.Len())
}

func TestGadgetFloat64Positions(t *testing.T) {
	dir := t.TempDir()
	hd := testHeader()
	hd.NPart = [6]uint32{0, 2, 0, 0, 0, 0}
	writeGadget(t, filepath.Join(dir, "snap_1"), binary.LittleEndian, hd,
		testBlock{"POS", []float64{1, 2, 3, 4, 5, 6}})

	r := NewGadgetReader(filepath.Join(dir, "snap_%d"), 2, 1)
	ps, err := r.Read(1, DM)
	require.NoError(t, err)
	assert.Equal(t, []geom.Vec{{2, 4, 6}, {8, 10, 12}}, ps.Xs)
}

func TestGadgetErrors(t *testing.T) {
	dir := t.TempDir()
	r := NewGadgetReader(filepath.Join(dir, "snap_%03d"), 1, 1)

	_, err := r.Read(3, DM)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	path := filepath.Join(dir, "snap_004")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3, 4, 5, 6, 7, 8}, 0644))
	_, err = r.Read(4, DM)
	assert.True(t, errors.Is(err, ErrNotSnapFormat2))

	path = filepath.Join(dir, "snap_005")
	writeGadget(t, path, binary.LittleEndian, testHeader())
	_, err = r.Read(5, DM)
	assert.Error(t, err)
}

func TestSnapPath(t *testing.T) {
	tests := []struct {
		format string
		snap   int
		exp    string
	}{
		{"snap_%03d", 7, "snap_007"},
		{"snapdir_%03d/snap_%03d", 12, "snapdir_012/snap_012"},
		{"100%%/snap_%d", 3, "100%/snap_3"},
	}
	for i, test := range tests {
		r := NewGadgetReader(test.format, 1, 1)
		if res := r.SnapPath(test.snap); res != test.exp {
			t.Errorf("%d) Expected %s, got %s.", i, test.exp, res)
		}
	}
}

func TestCosmologyHeaderMatches(t *testing.T) {
	c := &cosmo.FlatLambdaCDM{H0: 70, OmegaM: 0.3}
	tests := []struct {
		hd  CosmologyHeader
		res bool
	}{
		{CosmologyHeader{OmegaM: 0.3, H100: 0.7}, true},
		{CosmologyHeader{OmegaM: 0.30001, H100: 0.70001}, true},
		{CosmologyHeader{OmegaM: 0.3, H100: 0.6774}, false},
		{CosmologyHeader{OmegaM: 0.25, H100: 0.7}, false},
		{CosmologyHeader{}, true},
	}
	for i, test := range tests {
		if res := test.hd.Matches(c, CosmologyTolerance); res != test.res {
			t.Errorf("%d) Expected %v, got %v.", i, test.res, res)
		}
	}
}

func TestGadgetCosmologyCheck(t *testing.T) {
	buf := &bytes.Buffer{}
	log.SetOutput(buf)
	defer log.SetOutput(os.Stderr)

	dir := t.TempDir()
	hd := testHeader()
	hd.Omega0, hd.OmegaLambda = 0.25, 0.75
	writeGadget(t, filepath.Join(dir, "snap_1"), binary.LittleEndian,
		hd, testBlocks()...)

	assert.Equal(t, CosmologyHeader{Z: 0.25, OmegaM: 0.25, OmegaL: 0.75, H100: 0.5},
		hd.Cosmology())

	r := NewGadgetReader(filepath.Join(dir, "snap_%d"), 1, 1)
	r.Cosmo = cosmo.Planck15()
	_, err := r.Read(1, DM)
	require.NoError(t, err)
	_, err = r.Read(1, Gas)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(buf.String(), "!!!"))
	assert.Contains(t, buf.String(), "Omega_m = 0.25")

	buf.Reset()
	r = NewGadgetReader(filepath.Join(dir, "snap_%d"), 1, 1)
	r.Cosmo = &cosmo.FlatLambdaCDM{H0: 50, OmegaM: 0.25}
	_, err = r.Read(1, DM)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}
