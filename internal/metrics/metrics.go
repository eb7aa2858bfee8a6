// Package metrics provides Prometheus metrics for fetch runs
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for one process. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ObservationsMatched prometheus.Counter
	ChunksListed        prometheus.Counter
	ProductsListed      prometheus.Counter
	ProductsUnique      prometheus.Counter
	ProductsSelected    prometheus.Counter

	ArchiveCalls *prometheus.CounterVec
	StageSeconds *prometheus.HistogramVec
	LastSuccess  prometheus.Gauge

	MirrorFiles *prometheus.CounterVec
	MirrorBytes prometheus.Counter
}

// New registers the fetch collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ObservationsMatched: f.NewCounter(prometheus.CounterOpts{
			Name: "templates_fetch_observations_matched_total",
			Help: "Observations returned by criteria queries",
		}),
		ChunksListed: f.NewCounter(prometheus.CounterOpts{
			Name: "templates_fetch_chunks_listed_total",
			Help: "Observation chunks whose product lists were fetched",
		}),
		ProductsListed: f.NewCounter(prometheus.CounterOpts{
			Name: "templates_fetch_products_listed_total",
			Help: "Product rows returned before deduplication",
		}),
		ProductsUnique: f.NewCounter(prometheus.CounterOpts{
			Name: "templates_fetch_products_unique_total",
			Help: "Unique product filenames after deduplication",
		}),
		ProductsSelected: f.NewCounter(prometheus.CounterOpts{
			Name: "templates_fetch_products_selected_total",
			Help: "Products passed to manifest generation after type and sub-group filtering",
		}),
		ArchiveCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "templates_archive_calls_total",
			Help: "Archive operations by outcome",
		}, []string{"operation", "status"}),
		StageSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "templates_fetch_stage_duration_seconds",
			Help:    "Time spent in each fetch stage",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800},
		}, []string{"stage"}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "templates_fetch_last_success_timestamp_seconds",
			Help: "Unix time of the last fetch that completed without error",
		}),
		MirrorFiles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "templates_mirror_files_total",
			Help: "Product files handled by mirror runs by outcome (downloaded, skipped, failed)",
		}, []string{"status"}),
		MirrorBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "templates_mirror_bytes_total",
			Help: "Bytes written to the bucket by mirror runs",
		}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ArchiveCall records the outcome of one archive operation.
func (m *Metrics) ArchiveCall(operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ArchiveCalls.WithLabelValues(operation, status).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// AddObservations counts observations matched by a criteria query.
func (m *Metrics) AddObservations(n int) {
	if m == nil {
		return
	}
	m.ObservationsMatched.Add(float64(n))
}

// AddChunk counts one listed chunk and the product rows it returned.
func (m *Metrics) AddChunk(products int) {
	if m == nil {
		return
	}
	m.ChunksListed.Inc()
	m.ProductsListed.Add(float64(products))
}

// AddSelection counts unique and selected products of one fetch.
func (m *Metrics) AddSelection(unique, selected int) {
	if m == nil {
		return
	}
	m.ProductsUnique.Add(float64(unique))
	m.ProductsSelected.Add(float64(selected))
}

// AddMirrored counts one mirrored file with the given status.
func (m *Metrics) AddMirrored(status string, bytes int64) {
	if m == nil {
		return
	}
	m.MirrorFiles.WithLabelValues(status).Inc()
	m.MirrorBytes.Add(float64(bytes))
}

// Succeeded stamps the last-success gauge.
func (m *Metrics) Succeeded(t time.Time) {
	if m == nil {
		return
	}
	m.LastSuccess.Set(float64(t.Unix()))
}

// WriteTextfile writes all collectors to path in the text exposition
// format, for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
