package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/phil-mansfield/lensmap/cosmo"
	"github.com/phil-mansfield/lensmap/io"
	"github.com/phil-mansfield/lensmap/pipeline"
)

// FileGroup contains utility files for logging and writing profiles to.
type FileGroup struct {
	log, prof *os.File
}

// Close closes the files inside FileGroup.
func (fg *FileGroup) Close() {
	if fg.log != nil {
		err := fg.log.Close()
		if err != nil {
			log.Fatal(err.Error())
		}
	}

	if fg.prof != nil {
		pprof.StopCPUProfile()
		err := fg.prof.Close()
		if err != nil {
			log.Fatal(err.Error())
		}
	}
}

var (
	workers   int
	overwrite bool

	rootCmd = &cobra.Command{
		Use:   "lensmap",
		Short: "Makes gravitational lensing maps of simulated halos",
		Long: `lensmap projects the particles around each halo in a lens catalog,
solves for the deflection field of the resulting convergence map and writes
the critical curves and Einstein radius of each halo to NetCDF files.`,
	}

	runCmd = &cobra.Command{
		Use:   "run [config file]",
		Short: "Makes lensing maps for every halo in a run configuration",
		Args:  cobra.ExactArgs(1),
		Run:   runMain,
	}

	exampleCmd = &cobra.Command{
		Use:   "example-config",
		Short: "Prints an example run configuration to stdout",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(io.ExampleRunFile)
		},
	}

	summaryCmd = &cobra.Command{
		Use:   "summary [output files...]",
		Short: "Prints the lens, snapshot, source and Einstein radius of output files",
		Args:  cobra.MinimumNArgs(1),
		Run:   summaryMain,
	}

	partitionCmd = &cobra.Command{
		Use:   "partition [halos] [workers]",
		Short: "Prints the halo blocks each worker would be given",
		Args:  cobra.ExactArgs(2),
		Run:   partitionMain,
	}
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVarP(&workers, "workers", "w", 0,
		"Overrides the 'Workers' value of the configuration file.")
	runCmd.Flags().BoolVar(&overwrite, "overwrite", false,
		"Rewrites existing output files and ignores memoized deflection maps.")

	rootCmd.AddCommand(exampleCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(partitionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err.Error())
	}
}

func runMain(cmd *cobra.Command, args []string) {
	wrap, err := io.ReadRunConfig(args[0])
	if err != nil {
		log.Fatal(err.Error())
	}
	con := &wrap.Run
	if workers > 0 {
		con.Workers = workers
	}
	if overwrite {
		con.Overwrite = true
	}

	fg := setupIO(con)
	defer fg.Close()

	var conv *io.MassConversion
	if con.RadiusFromMass != "" {
		r, _ := cosmo.RadiusFromString(con.RadiusFromMass)
		conv = &io.MassConversion{Cosmo: con.Cosmology(), Radius: r}
	}
	lenses, err := io.ReadLenses(con.LensCatalog, conv)
	if err != nil {
		log.Fatal(err.Error())
	}
	sources, err := io.ReadSources(con.SourceCatalog)
	if err != nil {
		log.Fatal(err.Error())
	}
	log.Printf("Read %d lenses and %d sources.", len(lenses), sources.Len())
	if n := unmatchedHalos(lenses, sources); n > 0 {
		log.Printf("!!! %d halos in %s are not in %s.",
			n, con.SourceCatalog, con.LensCatalog)
	}

	if err := os.MkdirAll(con.Output, 0755); err != nil {
		log.Fatal(err.Error())
	}

	env := &pipeline.Env{
		Config: wrap,
		NewReader: func() io.ParticleReader {
			r := io.NewGadgetReader(con.SnapFormat, con.LengthScale, con.MassUnit)
			r.Cosmo = con.Cosmology()
			return r
		},
		Sink: &io.NetCDFSink{
			Dir: con.Output, Layout: con.Layout(), Overwrite: con.Overwrite,
		},
	}
	if con.ValidMemoDir() {
		env.Memo, err = io.OpenMemo(con.MemoDir)
		if err != nil {
			log.Fatal(err.Error())
		}
		defer env.Memo.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sum, err := pipeline.Run(ctx, env, lenses, sources)
	if err != nil {
		log.Fatal(err.Error())
	}

	ids := make([]int64, len(sum.Results))
	snaps := make([]int, len(sum.Results))
	rows := make([][]float64, len(sum.Results))
	for i, res := range sum.Results {
		ids[i], snaps[i] = res.HaloID, res.Snap
		rows[i] = []float64{
			float64(res.SourceID), res.EinsteinRadius, float64(res.Ncrit),
		}
	}
	io.PrintRows(os.Stdout, ids, snaps, rows)

	if con.ValidMetricsFile() {
		if err := env.Metrics.WriteFile(con.MetricsFile); err != nil {
			log.Fatal(err.Error())
		}
	}

	log.Printf(
		"Run %s: %d lenses, %d records, %d skipped.",
		sum.RunID, sum.Halos, len(sum.Results), sum.Skipped,
	)
}

// unmatchedHalos returns the number of halos with sources but no lens.
func unmatchedHalos(lenses []io.Lens, sources *io.SourceCatalog) int {
	ids := map[int64]bool{}
	for i := range lenses {
		ids[lenses[i].ID] = true
	}
	n := 0
	for _, id := range sources.HaloIDs() {
		if !ids[id] {
			n++
		}
	}
	return n
}

func summaryMain(cmd *cobra.Command, args []string) {
	ids := make([]int64, len(args))
	snaps := make([]int, len(args))
	rows := make([][]float64, len(args))
	for i, file := range args {
		rec, err := io.ReadRecordHeader(file)
		if err != nil {
			log.Fatal(err.Error())
		}
		ids[i], snaps[i] = rec.HaloID, rec.Snap
		rows[i] = []float64{
			float64(rec.SourceID), rec.ZLens, rec.ZSource, rec.EinsteinRadius,
		}
	}
	io.PrintRows(os.Stdout, ids, snaps, rows)
}

func partitionMain(cmd *cobra.Command, args []string) {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		log.Fatalf("Halo count '%s' is not a non-negative integer.", args[0])
	}
	w, err := strconv.Atoi(args[1])
	if err != nil || w < 1 {
		log.Fatalf("Worker count '%s' is not a positive integer.", args[1])
	}

	for i, block := range pipeline.Partition(n, w) {
		if len(block) == 0 {
			fmt.Printf("%d: -\n", i)
			continue
		}
		fmt.Printf("%d: %d-%d\n", i, block[0], block[len(block)-1])
	}
}

// setupIO sets up the log and profile files of a run.
func setupIO(con *io.RunConfig) *FileGroup {
	var err error
	fg := new(FileGroup)

	if con.ValidLogFile() {
		fg.log, err = os.Create(con.LogFile)
		if err != nil {
			log.Fatal(err.Error())
		}
		log.SetOutput(fg.log)
	}

	if con.ValidProfileFile() {
		fg.prof, err = os.Create(con.ProfileFile)
		if err != nil {
			log.Fatal(err.Error())
		}
		err = pprof.StartCPUProfile(fg.prof)
		if err != nil {
			log.Fatal(err.Error())
		}
	}

	return fg
}
