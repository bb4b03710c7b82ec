/*package pipeline turns lens and source catalogs into lensing maps. The lens
list is split into contiguous blocks which are processed concurrently, and
every lens/source pair which survives produces one io.Record.
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/lensmap/cosmo"
	"github.com/phil-mansfield/lensmap/density"
	"github.com/phil-mansfield/lensmap/geom"
	"github.com/phil-mansfield/lensmap/io"
	"github.com/phil-mansfield/lensmap/lens"
)

var errExists = errors.New("output already exists")

// Env is everything a run needs beyond its catalogs. Cosmo, Metrics, Solver
// and RunID are filled in from Config when they are nil or empty.
type Env struct {
	Config *io.RunWrapper
	Cosmo  cosmo.Distances
	// NewReader returns the particle reader used by a single worker.
	NewReader func() io.ParticleReader
	Sink      io.Sink
	// Memo is optional.
	Memo    *io.Memo
	Metrics *Metrics
	Solver  lens.Solver
	RunID   string
}

// existenceChecker is implemented by sinks which can tell whether a record
// has already been written.
type existenceChecker interface {
	Exists(haloID, srcID int64) bool
}

// Result is a short description of one written record.
type Result struct {
	HaloID, SourceID int64
	Snap             int
	EinsteinRadius   float64
	Ncrit            int
}

// Summary describes a finished run. Results are ordered by block and then by
// snapshot within each block.
type Summary struct {
	RunID   string
	Halos   int
	Skipped int
	Results []Result
}

func (env *Env) init() error {
	if env.Config == nil {
		return fmt.Errorf("pipeline.Env has no Config")
	} else if env.NewReader == nil {
		return fmt.Errorf("pipeline.Env has no NewReader")
	} else if env.Sink == nil {
		return fmt.Errorf("pipeline.Env has no Sink")
	}

	con := &env.Config.Run
	if con.Workers < 1 {
		return fmt.Errorf("pipeline.Env has %d workers", con.Workers)
	} else if err := env.Config.CheckSpecies(); err != nil {
		return err
	}

	if env.Cosmo == nil {
		env.Cosmo = con.Cosmology()
	}
	if env.Metrics == nil {
		env.Metrics = NewMetrics()
	}
	if env.Solver == nil {
		env.Solver = lens.Fourier{PadFac: con.PadFac}
	}
	if env.RunID == "" {
		env.RunID = uuid.NewString()
	}
	return nil
}

// Run makes lensing maps for every lens. Pairs which can't be processed are
// logged and skipped. Read and write errors stop the run.
func Run(
	ctx context.Context, env *Env, lenses []io.Lens, sources *io.SourceCatalog,
) (*Summary, error) {
	if err := env.init(); err != nil {
		return nil, err
	}

	blocks := Partition(len(lenses), env.Config.Run.Workers)
	results := make([][]Result, len(blocks))
	skipped := make([]int, len(blocks))

	g, gCtx := errgroup.WithContext(ctx)
	for i := range blocks {
		i := i
		g.Go(func() error {
			w := newWorker(env, sources)
			var err error
			results[i], skipped[i], err = w.run(gCtx, lenses, blocks[i])
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum := &Summary{RunID: env.RunID, Halos: len(lenses)}
	for i := range blocks {
		sum.Results = append(sum.Results, results[i]...)
		sum.Skipped += skipped[i]
	}
	return sum, nil
}

// worker processes a single block of lenses. Nothing in a worker is shared
// with other workers except the sink, the memo and the metrics.
type worker struct {
	env     *Env
	sources *io.SourceCatalog
	cache   *ParticleCache
	names   []string
	memoTag string
}

func newWorker(env *Env, sources *io.SourceCatalog) *worker {
	names := env.Config.SpeciesNames()
	species := make([]io.Species, len(names))
	tags := make([]string, len(names))
	for i, name := range names {
		species[i], _ = io.SpeciesFromString(name)
		sc := env.Config.Species[name]
		tags[i] = fmt.Sprintf("%s:%s:%d:%g",
			species[i], strings.ToLower(sc.Mode), sc.NeighbourNo, sc.SmoothFac)
	}

	cache := NewParticleCache(env.NewReader(), species)
	cache.onLoad = func(int) { env.Metrics.SnapshotLoads.Inc() }

	return &worker{
		env: env, sources: sources, cache: cache, names: names,
		memoTag: fmt.Sprintf("%T/%s/%s", env.Solver,
			strings.ToUpper(env.Config.Run.ProjectionAxis), strings.Join(tags, "+")),
	}
}

// run processes the lenses at the indices in block in snapshot order.
func (w *worker) run(
	ctx context.Context, lenses []io.Lens, block []int,
) (results []Result, skipped int, err error) {
	order := append([]int{}, block...)
	sort.SliceStable(order, func(a, b int) bool {
		return lenses[order[a]].Snap < lenses[order[b]].Snap
	})

	m := w.env.Metrics
	for _, idx := range order {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		start := time.Now()
		res, err := w.process(&lenses[idx])
		m.HaloSeconds.Observe(time.Since(start).Seconds())

		if err == nil {
			m.Halos.WithLabelValues(ResultOK).Inc()
			results = append(results, res)
			continue
		}

		reason := skipReason(err)
		if reason == "" {
			return nil, 0, err
		}
		log.Printf("!!! Skipping lens %d: %s", lenses[idx].ID, err)
		m.Halos.WithLabelValues(reason).Inc()
		skipped++
	}

	return results, skipped, nil
}

// skipReason returns the metrics label of an error which only affects a
// single lens, or "" for errors which should stop the run.
func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrNoSource):
		return ResultNoSource
	case errors.Is(err, cosmo.ErrSourceBehindLens):
		return ResultBehindLens
	case errors.Is(err, ErrInsufficientData):
		return ResultInsufficient
	case errors.Is(err, errExists):
		return ResultExists
	}
	return ""
}

func (w *worker) process(l *io.Lens) (Result, error) {
	env, con := w.env, &w.env.Config.Run

	src, err := SelectSource(w.sources.ForHalo(l.ID))
	if err != nil {
		return Result{}, fmt.Errorf("lens %d: %w", l.ID, err)
	}
	if ec, ok := env.Sink.(existenceChecker); ok && !con.Overwrite &&
		ec.Exists(l.ID, src.ID) {
		return Result{}, fmt.Errorf("lens %d, source %d: %w", l.ID, src.ID, errExists)
	}

	sigmaCrit, err := cosmo.SigmaCrit(env.Cosmo, l.Z, src.Z)
	if err != nil {
		return Result{}, fmt.Errorf("lens %d, source %d: %w", l.ID, src.ID, err)
	}

	fov := con.FOVFactor * l.Rvir
	if !(fov > 0) {
		return Result{}, fmt.Errorf(
			"lens %d has radius %g: %w", l.ID, l.Rvir, ErrInsufficientData,
		)
	}

	sets, err := w.cache.Get(l.Snap)
	if err != nil {
		return Result{}, err
	}

	maps, n, err := w.project(l, sets, fov)
	if err != nil {
		return Result{}, err
	} else if n < con.MinParticles {
		return Result{}, fmt.Errorf(
			"lens %d has %d particles in its field of view, %d needed: %w",
			l.ID, n, con.MinParticles, ErrInsufficientData,
		)
	}

	g := geom.NewGrid(con.Cells, fov)
	total := density.NewMap(g)
	for _, name := range w.names {
		sp, _ := io.SpeciesFromString(name)
		total.Add(maps[sp])
	}

	kappa := make([]float64, len(total.Sigma))
	for i := range kappa {
		kappa[i] = total.Sigma[i] / sigmaCrit
		if math.IsNaN(kappa[i]) || math.IsInf(kappa[i], 0) {
			return Result{}, fmt.Errorf(
				"lens %d has non-finite convergence: %w", l.ID, ErrInsufficientData,
			)
		}
	}

	ax, ay, err := w.deflect(l, total.Sigma, g)
	if err != nil {
		return Result{}, err
	}
	floats.Scale(1/(sigmaCrit*con.Xi0), ax)
	floats.Scale(1/(sigmaCrit*con.Xi0), ay)

	field := lens.Resample(ax, ay, g, con.RayParams(fov))
	jac := lens.AnalyzeField(field)
	dl := env.Cosmo.AngularDiameterDistance(l.Z)
	curves := lens.ExtractCurves(jac, field, dl)
	bx, by := field.SourcePositions()

	log.Printf("Lens ID: %d, Einstein Radius: %f", l.ID, curves.EinsteinRadius)

	rec := &io.Record{
		RunID: env.RunID, HaloID: l.ID, SourceID: src.ID, Snap: l.Snap,
		ZLens: l.Z, ZSource: src.Z, HaloPos: l.Pos, Rvir: l.Rvir,
		SigmaCrit: sigmaCrit,

		FOV: fov, Cells: con.Cells, Grid: g.Centers,
		Sigma: map[io.Species][]float64{}, Kappa: kappa,

		Rays: field.N, Xi0: field.Xi0, RayAxis: field.Xs,
		AlphaX: field.AlphaX, AlphaY: field.AlphaY,
		DetA: jac.DetA, LambdaT: jac.LambdaT, LambdaR: jac.LambdaR,
		Mag: jac.Mag, A11: jac.A11, A12: jac.A12, A21: jac.A21, A22: jac.A22,
		RayKappa: jac.Kappa, Gamma1: jac.Gamma1, Gamma2: jac.Gamma2,
		Gamma: jac.Gamma, SourceX: bx, SourceY: by,

		Critical: curves.Critical, Tangential: curves.Tangential,
		Area: curves.Area, EinsteinRadius: curves.EinsteinRadius,
	}
	for sp, m := range maps {
		rec.Sigma[sp] = m.Sigma
	}

	if err := env.Sink.Write(rec); err != nil {
		return Result{}, err
	}
	env.Metrics.Records.Inc()

	return Result{
		HaloID: l.ID, SourceID: src.ID, Snap: l.Snap,
		EinsteinRadius: curves.EinsteinRadius, Ncrit: curves.Ncrit(),
	}, nil
}

// project makes the surface density map of every configured species and
// counts the particles which land in the field of view.
func (w *worker) project(
	l *io.Lens, sets map[io.Species]*io.ParticleSet, fov float64,
) (map[io.Species]*density.Map, int, error) {
	con := &w.env.Config.Run
	axes := con.Axes()

	maps := map[io.Species]*density.Map{}
	n := 0
	for _, name := range w.names {
		sp, _ := io.SpeciesFromString(name)
		ps := sets[sp]

		p, err := w.env.Config.Species[name].Params(fov, con.Cells, axes)
		if err != nil {
			return nil, 0, err
		}
		m, err := density.Project(ps.Xs, ps.Ms, l.Pos, p)
		if err != nil {
			return nil, 0, fmt.Errorf("lens %d, species %s: %w", l.ID, sp, err)
		}

		maps[sp] = m
		n += countInView(ps.Xs, l.Pos, axes, fov)
	}
	return maps, n, nil
}

// deflect returns the deflection of the surface density map sigma in
// units of Msun/Mpc, reading it from the memo if possible.
func (w *worker) deflect(l *io.Lens, sigma []float64, g *geom.Grid) (ax, ay []float64, err error) {
	env, con := w.env, &w.env.Config.Run
	if env.Memo == nil {
		ax, ay = env.Solver.Deflect(sigma, g)
		return ax, ay, nil
	}

	key := io.MemoKey(l.ID, l.Snap, con.Cells, g.FOV, con.PadFac, w.memoTag)
	if !con.Overwrite {
		cx, cy, ok, err := env.Memo.Get(key)
		if err != nil {
			return nil, nil, err
		} else if ok && len(cx) == g.Area {
			env.Metrics.MemoHits.Inc()
			return cx, cy, nil
		}
	}

	ax, ay = env.Solver.Deflect(sigma, g)
	if err := env.Memo.Put(key, ax, ay); err != nil {
		return nil, nil, err
	}
	return ax, ay, nil
}

// countInView returns the number of particles whose projected positions fall
// inside the square field of view around centre.
func countInView(xs []geom.Vec, centre geom.Vec, axes [2]int, fov float64) int {
	n := 0
	half := fov / 2
	for i := range xs {
		dx := xs[i].Sub(centre)
		x, y := float64(dx[axes[0]]), float64(dx[axes[1]])
		if x >= -half && x <= half && y >= -half && y <= half {
			n++
		}
	}
	return n
}
