// Package metrics exposes Prometheus collectors for sampling runs,
// collaborator calls and search requests.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shpitdev/product-image-sampler/internal/sampler"
)

const namespace = "image_sampler"

// Collaborator labels.
const (
	Catalog  = "catalog"
	Scrape   = "scrape"
	Selector = "selector"
)

// Metrics owns a private registry. It implements sampler.Observer.
type Metrics struct {
	registry *prometheus.Registry

	batches       prometheus.Counter
	batchSize     prometheus.Histogram
	enriched      *prometheus.CounterVec
	runs          *prometheus.CounterVec
	calls         *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	searches      *prometheus.CounterVec
	searchLatency prometheus.Histogram
}

var _ sampler.Observer = (*Metrics)(nil)

// New registers every collector plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Sampler batches processed.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Items per sampler batch.",
			Buckets:   []float64{1, 2, 3, 4, 6, 10},
		}),
		enriched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_enriched_total",
			Help:      "Items enriched, by result.",
		}, []string{"result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished sampling runs, by stop reason.",
		}, []string{"stop_reason"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_calls_total",
			Help:      "Calls to external collaborators, by collaborator and outcome.",
		}, []string{"collaborator", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collaborator_call_duration_seconds",
			Help:      "Latency of external collaborator calls.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"collaborator"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests, by result.",
		}, []string{"result"}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
	}
	m.registry.MustRegister(
		m.batches, m.batchSize, m.enriched, m.runs,
		m.calls, m.callDuration, m.searches, m.searchLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) BatchStarted(context.Context, sampler.BatchStart) {}

func (m *Metrics) BatchFinished(_ context.Context, ev sampler.BatchFinish) {
	m.batches.Inc()
	m.batchSize.Observe(float64(ev.Size))
	m.enriched.WithLabelValues("improved").Add(float64(ev.Improved))
	m.enriched.WithLabelValues("unchanged").Add(float64(ev.Size - ev.Improved))
	m.enriched.WithLabelValues("high_quality").Add(float64(ev.HighQuality))
}

func (m *Metrics) StateChanged(_ context.Context, ev sampler.StateChange) {
	if ev.To == sampler.StateRunning {
		return
	}
	m.runs.WithLabelValues(string(ev.To)).Inc()
}

// ObserveCall records one collaborator call.
func (m *Metrics) ObserveCall(collaborator string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(collaborator, outcome).Inc()
	m.callDuration.WithLabelValues(collaborator).Observe(d.Seconds())
}

// ObserveSearch records one search request. result is "ok", "invalid" or "failed".
func (m *Metrics) ObserveSearch(result string, d time.Duration) {
	m.searches.WithLabelValues(result).Inc()
	m.searchLatency.Observe(d.Seconds())
}
