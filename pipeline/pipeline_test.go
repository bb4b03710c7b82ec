package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/lensmap/cosmo"
	"github.com/phil-mansfield/lensmap/geom"
	"github.com/phil-mansfield/lensmap/io"
)

// memReader serves particle sets from memory and counts reads.
type memReader struct {
	snaps map[int][]geom.Vec
	ms    map[int][]float64
	reads *int32
}

func (r *memReader) Read(snap int, sp io.Species) (*io.ParticleSet, error) {
	atomic.AddInt32(r.reads, 1)
	xs, ok := r.snaps[snap]
	if !ok {
		return nil, errors.New("no such snapshot")
	}
	return &io.ParticleSet{Species: sp, Snap: snap, Xs: xs, Ms: r.ms[snap]}, nil
}

// memSink keeps every record it is given.
type memSink struct {
	mtx  sync.Mutex
	recs []*io.Record
}

func (s *memSink) Write(rec *io.Record) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func testConfig(cells, rays int) *io.RunWrapper {
	wrap := io.DefaultRunWrapper()
	wrap.Run.Cells = cells
	wrap.Run.Rays = rays
	wrap.Run.MinParticles = 10
	wrap.Species = map[string]*io.SpeciesConfig{
		"dm": {Mode: "histogram"},
	}
	return wrap
}

// gaussianLattice returns particles on a regular lattice around centre whose
// surface density is sigma0 * exp(-r^2 / 2s^2).
func gaussianLattice(
	centre geom.Vec, width float64, n int, sigma0, s float64,
) ([]geom.Vec, []float64) {
	h := width / float64(n)
	xs := make([]geom.Vec, 0, n*n)
	ms := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		x := (float64(i)+0.5)*h - width/2
		for j := 0; j < n; j++ {
			y := (float64(j)+0.5)*h - width/2
			r2 := x*x + y*y
			xs = append(xs, geom.Vec{
				centre[0] + float32(x), centre[1] + float32(y), centre[2],
			})
			ms = append(ms, sigma0*math.Exp(-r2/(2*s*s))*h*h)
		}
	}
	return xs, ms
}

// gaussianEinsteinRadius returns the radius inside which the mean convergence
// of a Gaussian profile is one.
func gaussianEinsteinRadius(k0, s float64) float64 {
	lo, hi := 1e-6, 50.0
	f := func(u float64) float64 { return k0*(1-math.Exp(-u)) - u }
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if f(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return s * math.Sqrt(2*lo)
}

func TestParticleCache(t *testing.T) {
	reads := int32(0)
	r := &memReader{
		snaps: map[int][]geom.Vec{1: {{0, 0, 0}}, 2: {{1, 1, 1}}},
		ms:    map[int][]float64{1: {1}, 2: {2}},
		reads: &reads,
	}
	c := NewParticleCache(r, []io.Species{io.DM, io.Gas})

	snaps := []int{1, 1, 2, 2, 1}
	loads := []int{1, 1, 2, 2, 3}
	for i := range snaps {
		sets, err := c.Get(snaps[i])
		require.NoError(t, err)
		assert.Equal(t, snaps[i], sets[io.DM].Snap)
		if c.Loads != loads[i] {
			t.Errorf("%d) Expected %d loads, got %d.", i, loads[i], c.Loads)
		}
	}
	assert.Equal(t, int32(6), reads)

	_, err := c.Get(3)
	assert.Error(t, err)
	_, err = c.Get(3)
	assert.Error(t, err)
	assert.Equal(t, 3, c.Loads)
}

func TestRunGaussianLens(t *testing.T) {
	c := cosmo.Planck15()
	zl, zs := 0.5, 2.0
	sigmaCrit, err := cosmo.SigmaCrit(c, zl, zs)
	require.NoError(t, err)

	k0, s := 3.0, 0.03
	centre := geom.Vec{5, 5, 5}
	xs, ms := gaussianLattice(centre, 0.3, 256, k0*sigmaCrit, s)

	reads := int32(0)
	r := &memReader{
		snaps: map[int][]geom.Vec{7: xs}, ms: map[int][]float64{7: ms},
		reads: &reads,
	}
	sink := &memSink{}
	env := &Env{
		Config: testConfig(64, 64), Cosmo: c, Sink: sink,
		NewReader: func() io.ParticleReader { return r },
	}

	lenses := []io.Lens{
		{ID: 1, Snap: 7, Z: zl, Pos: centre, Rvir: 1},
		{ID: 2, Snap: 7, Z: zl, Pos: centre, Rvir: 1},
		{ID: 3, Snap: 7, Z: zl, Pos: centre, Rvir: 1},
		{ID: 4, Snap: 7, Z: zl, Pos: geom.Vec{50, 50, 50}, Rvir: 1},
	}
	sources := io.NewSourceCatalog([]io.Source{
		{HaloID: 1, ID: 10, Z: 1},
		{HaloID: 1, ID: 11, Z: zs},
		{HaloID: 3, ID: 30, Z: 0.25},
		{HaloID: 4, ID: 40, Z: zs},
	})

	sum, err := Run(context.Background(), env, lenses, sources)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Halos)
	assert.Equal(t, 3, sum.Skipped)
	require.Len(t, sum.Results, 1)
	require.Len(t, sink.recs, 1)
	assert.Equal(t, int32(1), reads)

	m := env.Metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Halos.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Halos.WithLabelValues(ResultNoSource)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Halos.WithLabelValues(ResultBehindLens)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Halos.WithLabelValues(ResultInsufficient)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Records))

	rec := sink.recs[0]
	assert.Equal(t, int64(11), rec.SourceID)
	assert.Equal(t, zs, rec.ZSource)
	assert.Equal(t, env.RunID, rec.RunID)
	assert.NotEmpty(t, rec.RunID)
	assert.InDelta(t, 0.3, rec.FOV, 1e-12)
	assert.Len(t, rec.Kappa, 64*64)
	assert.Len(t, rec.AlphaX, 64*64)
	for _, m := range [][]float64{
		rec.Mag, rec.A11, rec.A12, rec.A21, rec.A22,
		rec.RayKappa, rec.Gamma1, rec.Gamma2, rec.Gamma, rec.SourceX, rec.SourceY,
	} {
		assert.Len(t, m, 64*64)
	}
	for _, i := range []int{0, 64*32 + 17, 64*64 - 1} {
		ix, iy := i/64, i%64
		assert.InDelta(t, rec.RayAxis[ix]-rec.AlphaX[i], rec.SourceX[i], 1e-12)
		assert.InDelta(t, rec.RayAxis[iy]-rec.AlphaY[i], rec.SourceY[i], 1e-12)
		assert.InDelta(t, 1/rec.DetA[i], rec.Mag[i], 1e-9*math.Abs(rec.Mag[i]))
	}

	assert.True(t, len(rec.Critical) >= 1)
	assert.NotEmpty(t, rec.Tangential)

	dl := c.AngularDiameterDistance(zl)
	exp := gaussianEinsteinRadius(k0, s) / dl * cosmo.ArcsecPerRadian
	res := sum.Results[0].EinsteinRadius
	if math.Abs(res-exp)/exp > 0.05 {
		t.Errorf("Expected Einstein radius %g, got %g.", exp, res)
	}

	// The central convergence should be close to k0 after binning.
	n := rec.Cells
	kMax := 0.0
	for i := 0; i < n*n; i++ {
		kMax = math.Max(kMax, rec.Kappa[i])
	}
	assert.InDelta(t, k0, kMax, 0.1*k0)
}

func emptyLenses(snaps ...int) []io.Lens {
	lenses := make([]io.Lens, len(snaps))
	for i := range lenses {
		lenses[i] = io.Lens{
			ID: int64(i), Snap: snaps[i], Z: 0.3, Rvir: 0.5,
		}
	}
	return lenses
}

func uniformEnv(reads *int32, workers int) (*Env, *memSink) {
	xs := make([]geom.Vec, 0, 400)
	ms := make([]float64, 0, 400)
	for i := 0; i < 20; i++ {
		for j := 0; j < 20; j++ {
			xs = append(xs, geom.Vec{
				float32(i)*0.0075 - 0.07, float32(j)*0.0075 - 0.07, 0,
			})
			ms = append(ms, 1e8)
		}
	}
	r := &memReader{
		snaps: map[int][]geom.Vec{1: xs, 2: xs},
		ms:    map[int][]float64{1: ms, 2: ms},
		reads: reads,
	}

	con := testConfig(16, 16)
	con.Run.Workers = workers
	sink := &memSink{}
	return &Env{
		Config: con, Sink: sink,
		NewReader: func() io.ParticleReader { return r },
	}, sink
}

func TestRunSnapshotOrder(t *testing.T) {
	sources := io.NewSourceCatalog([]io.Source{
		{HaloID: 0, ID: 0, Z: 1}, {HaloID: 1, ID: 1, Z: 1},
		{HaloID: 2, ID: 2, Z: 1}, {HaloID: 3, ID: 3, Z: 1},
	})

	tests := []struct {
		workers int
		loads   int32
	}{
		{1, 2},
		{2, 4},
		{4, 4},
	}

	for i, test := range tests {
		reads := int32(0)
		env, sink := uniformEnv(&reads, test.workers)
		sum, err := Run(context.Background(), env, emptyLenses(2, 1, 2, 1), sources)
		require.NoError(t, err)

		if reads != test.loads {
			t.Errorf("%d) Expected %d snapshot loads, got %d.", i, test.loads, reads)
		}
		assert.Equal(t, float64(test.loads), testutil.ToFloat64(env.Metrics.SnapshotLoads))
		assert.Len(t, sink.recs, 4)
		assert.Equal(t, 0, sum.Skipped)

		// A weak, uniform lens has no critical curves.
		for _, res := range sum.Results {
			assert.Equal(t, 0.0, res.EinsteinRadius)
			assert.Equal(t, 0, res.Ncrit)
		}
	}
}

func TestRunInvalidEnv(t *testing.T) {
	reads := int32(0)
	sources := io.NewSourceCatalog([]io.Source{{HaloID: 0, ID: 0, Z: 1}})

	env, sink := uniformEnv(&reads, 1)
	env.Config.Run.Workers = 0
	assert.NotPanics(t, func() {
		_, err := Run(context.Background(), env, emptyLenses(1), sources)
		assert.Error(t, err)
	})

	env, _ = uniformEnv(&reads, 1)
	env.Config.Species["DM"] = &io.SpeciesConfig{Mode: "histogram"}
	_, err := Run(context.Background(), env, emptyLenses(1), sources)
	assert.Error(t, err)

	env, _ = uniformEnv(&reads, 1)
	env.Sink = nil
	_, err = Run(context.Background(), env, emptyLenses(1), sources)
	assert.Error(t, err)

	assert.Equal(t, int32(0), reads)
	assert.Empty(t, sink.recs)
}

func TestRunReadError(t *testing.T) {
	reads := int32(0)
	env, _ := uniformEnv(&reads, 2)
	sources := io.NewSourceCatalog([]io.Source{{HaloID: 0, ID: 0, Z: 1}})

	_, err := Run(context.Background(), env, emptyLenses(99), sources)
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	reads := int32(0)
	env, sink := uniformEnv(&reads, 1)
	sources := io.NewSourceCatalog([]io.Source{{HaloID: 0, ID: 0, Z: 1}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, env, emptyLenses(1), sources)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, sink.recs)
}

func TestRunMemo(t *testing.T) {
	memo, err := io.OpenMemo("")
	require.NoError(t, err)
	defer memo.Close()

	sources := io.NewSourceCatalog([]io.Source{
		{HaloID: 0, ID: 0, Z: 1}, {HaloID: 1, ID: 1, Z: 1},
	})

	var first []*io.Record
	for run := 0; run < 2; run++ {
		reads := int32(0)
		env, sink := uniformEnv(&reads, 1)
		env.Memo = memo
		_, err := Run(context.Background(), env, emptyLenses(1, 1), sources)
		require.NoError(t, err)

		hits := testutil.ToFloat64(env.Metrics.MemoHits)
		if run == 0 {
			assert.Equal(t, 0.0, hits)
			first = sink.recs
			continue
		}

		assert.Equal(t, 2.0, hits)
		require.Len(t, sink.recs, len(first))
		for i := range first {
			assert.InDeltaSlice(t, first[i].AlphaX, sink.recs[i].AlphaX, 1e-12)
		}
	}
}

func TestRunNetCDFSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	sources := io.NewSourceCatalog([]io.Source{{HaloID: 0, ID: 5, Z: 1}})

	for run := 0; run < 2; run++ {
		reads := int32(0)
		env, _ := uniformEnv(&reads, 1)
		env.Sink = &io.NetCDFSink{Dir: dir}

		sum, err := Run(context.Background(), env, emptyLenses(1), sources)
		require.NoError(t, err)
		assert.Equal(t, run, sum.Skipped)
		assert.Equal(t, float64(run),
			testutil.ToFloat64(env.Metrics.Halos.WithLabelValues(ResultExists)))
	}

	rec, err := io.ReadRecord(dir + "/LM_L0_S5.nc")
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.SourceID)
	assert.Equal(t, 16, rec.Cells)
}
