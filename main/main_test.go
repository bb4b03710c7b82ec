package main

import (
	"testing"

	"github.com/phil-mansfield/lensmap/io"
)

func TestUnmatchedHalos(t *testing.T) {
	lenses := []io.Lens{{ID: 1}, {ID: 2}, {ID: 3}}
	tests := []struct {
		srcs []io.Source
		n    int
	}{
		{nil, 0},
		{[]io.Source{{HaloID: 1}, {HaloID: 3, ID: 1}}, 0},
		{[]io.Source{{HaloID: 1}, {HaloID: 4}, {HaloID: 4, ID: 1}, {HaloID: 5}}, 2},
	}

	for i, test := range tests {
		n := unmatchedHalos(lenses, io.NewSourceCatalog(test.srcs))
		if n != test.n {
			t.Errorf("%d) Expected %d unmatched halos, got %d.", i, test.n, n)
		}
	}
}
