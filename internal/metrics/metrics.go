package metrics

import (
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vmdebug"

var (
	// Registry is a dedicated Prometheus registry for all vmdebug metrics.
	Registry = prometheus.NewRegistry()

	// RunsTotal counts narrative runs by outcome.
	RunsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of narrative runs",
		},
		[]string{"outcome"}, // success | write_error
	)

	// LinesWrittenTotal accumulates narrative lines printed.
	LinesWrittenTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_written_total",
			Help:      "Total narrative lines written to stdout",
		},
	)

	// RenderDuration measures how long one narrative pass takes.
	RenderDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_ms",
			Help:      "Duration of a narrative pass in milliseconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		},
	)

	// LastJobUnix is the seconds value of the most recent failover job id.
	LastJobUnix = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_job_unix_seconds",
			Help:      "Timestamp embedded in the most recent failover job id",
		},
	)

	// JournalRecordsTotal counts run records written to the journal.
	JournalRecordsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_records_total",
			Help:      "Run records written to the journal",
		},
		[]string{"outcome"},
	)

	// Info exposes static information about the binary.
	Info = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Static information about the vmdebug binary",
		},
		[]string{"os", "arch", "version"},
	)

	// Up is 1 while the process is running.
	Up = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 if vmdebug completed its run",
		},
	)
)

func init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Up.Set(1)
}

// SetInfo publishes the info metric.
func SetInfo(version string) {
	if version == "" {
		version = "dev"
	}
	Info.WithLabelValues(runtime.GOOS, runtime.GOARCH, version).Set(1)
}

// ObserveRun records one narrative pass.
func ObserveRun(start time.Time, lines int, jobUnix int64, err error) {
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	RenderDuration.Observe(elapsed)

	if lines > 0 {
		LinesWrittenTotal.Add(float64(lines))
	}

	if err != nil {
		RunsTotal.WithLabelValues("write_error").Inc()
		return
	}
	RunsTotal.WithLabelValues("success").Inc()
	LastJobUnix.Set(float64(jobUnix))
}

// ObserveJournal records the outcome of a journal append.
func ObserveJournal(err error) {
	if err != nil {
		JournalRecordsTotal.WithLabelValues("error").Inc()
		return
	}
	JournalRecordsTotal.WithLabelValues("success").Inc()
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
// Nothing is served over the network.
func WriteTextfile(path string) error {
	if path == "" {
		return fmt.Errorf("metrics file path is empty")
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
