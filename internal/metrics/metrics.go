// Package metrics exposes Prometheus instrumentation for the detection
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all pipeline metrics on a private registry.
type Collector struct {
	LinesTotal      *prometheus.CounterVec
	EmbeddingsTotal *prometheus.CounterVec
	AnomaliesTotal  *prometheus.CounterVec
	BatchesTotal    *prometheus.CounterVec
	BatchDuration   prometheus.Histogram
	IndexSize       prometheus.Gauge

	registry *prometheus.Registry
}

// NewCollector creates and registers all pipeline metrics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		LinesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seclog_lines_total",
				Help: "Log lines seen by the parser",
			},
			[]string{"result"}, // parsed | dropped
		),
		EmbeddingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seclog_embeddings_total",
				Help: "Embedding generation outcomes",
			},
			[]string{"result"}, // ok | failed
		),
		AnomaliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seclog_anomalies_total",
				Help: "Anomalies flagged, by detector",
			},
			[]string{"detector"},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seclog_batches_total",
				Help: "File batches processed",
			},
			[]string{"result"}, // ok | aborted | empty
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seclog_batch_duration_seconds",
				Help:    "End-to-end duration of one file batch",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		IndexSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "seclog_index_vectors",
				Help: "Vectors currently held by the similarity index",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		c.LinesTotal,
		c.EmbeddingsTotal,
		c.AnomaliesTotal,
		c.BatchesTotal,
		c.BatchDuration,
		c.IndexSize,
	)

	return c
}

// Handler returns the HTTP handler serving this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
