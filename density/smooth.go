package density

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/phil-mansfield/lensmap/geom"
)

// SmoothingLengths returns the distance from each point to its k-th nearest
// neighbour, counting the point itself as the first. If there are fewer than
// k points, the distance to the farthest point is used.
func SmoothingLengths(xs, ys, zs []float64, k int) []float64 {
	hs := make([]float64, len(xs))
	if len(xs) == 0 {
		return hs
	}

	pts := make(kdtree.Points, len(xs))
	for i := range xs {
		pts[i] = kdtree.Point{xs[i], ys[i], zs[i]}
	}
	// kdtree.New reorders its input.
	tree := kdtree.New(append(kdtree.Points{}, pts...), false)

	for i := range pts {
		keep := kdtree.NewNKeeper(k)
		tree.NearestSet(keep, pts[i])

		d2 := 0.0
		for _, c := range keep.Heap {
			if c.Comparable == nil || math.IsInf(c.Dist, 0) {
				continue
			}
			d2 = math.Max(d2, c.Dist)
		}
		hs[i] = math.Sqrt(d2)
	}

	return hs
}

// HBins splits smoothing lengths into logarithmic bins with base 2 starting at
// 0.8 times the smallest length. It returns the bin of each length and the
// geometric mid-point of each bin. Lengths beyond the last edge are put in the
// last bin.
func HBins(hs []float64) (idx []int, mids []float64) {
	idx = make([]int, len(hs))
	if len(hs) == 0 {
		return idx, nil
	}

	hMin, hMax := math.Inf(+1), 0.0
	for _, h := range hs {
		if h > 0 && h < hMin {
			hMin = h
		}
		hMax = math.Max(hMax, h)
	}
	if math.IsInf(hMin, +1) {
		// Every point is coincident with its neighbours.
		return idx, []float64{0}
	}

	n := int(math.Log2(hMax/hMin)) + 2
	edges := make([]float64, n)
	for i := range edges {
		edges[i] = 0.8 * hMin * math.Pow(2, float64(i))
	}
	mids = make([]float64, n-1)
	for i := range mids {
		mids[i] = math.Sqrt(edges[i] * edges[i+1])
	}

	for i, h := range hs {
		j := 0
		if h > 0 {
			j = int(math.Floor(math.Log2(h / edges[0])))
			// Log2 rounding can put values near an edge in the wrong bin.
			for j > 0 && h < edges[j] {
				j--
			}
			for j+1 < len(edges) && h >= edges[j+1] {
				j++
			}
		}
		if j < 0 {
			j = 0
		} else if j >= len(mids) {
			j = len(mids) - 1
		}
		idx[i] = j
	}
	return idx, mids
}

// SmoothedHistogram adds the masses ms at (xs, ys) to out, with each point
// spread by a Gaussian of width smoothFac*h. Points are grouped into
// logarithmic bins of h so only one filter pass is made per bin.
func SmoothedHistogram(
	xs, ys, ms, hs []float64, smoothFac float64, g *geom.Grid, out []float64,
) {
	idx, mids := HBins(hs)
	buf := make([]float64, g.Area)
	bx, by, bm := []float64{}, []float64{}, []float64{}

	for b := range mids {
		bx, by, bm = bx[:0], by[:0], bm[:0]
		for i := range xs {
			if idx[i] != b {
				continue
			}
			bx = append(bx, xs[i])
			by = append(by, ys[i])
			bm = append(bm, ms[i])
		}
		if len(bx) == 0 {
			continue
		}

		for i := range buf {
			buf[i] = 0
		}
		Histogram2D(bx, by, bm, g, buf)
		GaussianFilter(buf, g.N, smoothFac*mids[b]/g.CellWidth(), FilterTruncate)
		floats.Add(out, buf)
	}
}
