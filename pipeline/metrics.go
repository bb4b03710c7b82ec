package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for Metrics.Halos.
const (
	ResultOK           = "ok"
	ResultNoSource     = "no_source"
	ResultBehindLens   = "source_behind_lens"
	ResultInsufficient = "insufficient_data"
	ResultExists       = "exists"
)

// Metrics counts the work done during a run. Each run has its own registry so
// that the counters can be written out when the run ends.
type Metrics struct {
	Registry *prometheus.Registry

	Halos         *prometheus.CounterVec
	Records       prometheus.Counter
	SnapshotLoads prometheus.Counter
	MemoHits      prometheus.Counter
	HaloSeconds   prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Halos: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lensmap_halos_total",
			Help: "Halos processed, by outcome.",
		}, []string{"result"}),
		Records: factory.NewCounter(prometheus.CounterOpts{
			Name: "lensmap_records_written_total",
			Help: "Lens records written to the sink.",
		}),
		SnapshotLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "lensmap_snapshot_loads_total",
			Help: "Snapshots read from disk.",
		}),
		MemoHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "lensmap_memo_hits_total",
			Help: "Deflection maps read from the memo instead of solved.",
		}),
		HaloSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lensmap_halo_seconds",
			Help:    "Time spent on a single halo.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
}

// WriteFile writes every metric to path in the Prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
