// Package metrics exposes batch and collection counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cuas"

// Metrics is a set of collectors on a private registry. A nil *Metrics is a
// valid no-op, so the core can run without metrics.
type Metrics struct {
	reg *prometheus.Registry

	postsScored         *prometheus.CounterVec
	correlations        *prometheus.CounterVec
	predictions         *prometheus.CounterVec
	recordErrors        *prometheus.CounterVec
	locationAmbiguous   prometheus.Counter
	channelsPrioritized *prometheus.CounterVec
	feedFetches         *prometheus.CounterVec
	incidentsStored     prometheus.Counter
	batchDuration       prometheus.Histogram
	lastBatch           prometheus.Gauge
}

// New registers every collector on a fresh registry, along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		postsScored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_scored_total",
			Help:      "Posts scored, by severity tier",
		}, []string{"tier"}),
		correlations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlations_total",
			Help:      "Post to incident correlations found, by strength",
		}, []string{"strength"}),
		predictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Prediction windows computed, by status",
		}, []string{"status"}),
		recordErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_errors_total",
			Help:      "Records skipped as malformed, by record kind",
		}, []string{"kind"}),
		locationAmbiguous: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_ambiguous_total",
			Help:      "Location texts that named more than one canonical location",
		}),
		channelsPrioritized: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_prioritized_total",
			Help:      "Channels prioritized, by monitoring tier",
		}, []string{"tier"}),
		feedFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetch_total",
			Help:      "Incident feed fetches, by status",
		}, []string{"status"}), // "ok", "error"
		incidentsStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_stored_total",
			Help:      "New incidents stored from feeds",
		}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of scoring and correlation batches in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
		}),
		lastBatch: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_timestamp_seconds",
			Help:      "Unix time the last batch finished",
		}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) PostScored(tier string) {
	if m != nil {
		m.postsScored.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) Correlation(strength string) {
	if m != nil {
		m.correlations.WithLabelValues(strength).Inc()
	}
}

func (m *Metrics) Prediction(status string) {
	if m != nil {
		m.predictions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) RecordError(kind string) {
	if m != nil {
		m.recordErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) LocationAmbiguous() {
	if m != nil {
		m.locationAmbiguous.Inc()
	}
}

func (m *Metrics) ChannelPrioritized(tier string) {
	if m != nil {
		m.channelsPrioritized.WithLabelValues(tier).Inc()
	}
}

// FeedFetch records one feed fetch and, on success, how many new incidents
// it stored.
func (m *Metrics) FeedFetch(err error, stored int) {
	if m == nil {
		return
	}
	if err != nil {
		m.feedFetches.WithLabelValues("error").Inc()
		return
	}
	m.feedFetches.WithLabelValues("ok").Inc()
	m.incidentsStored.Add(float64(stored))
}

// BatchDone records a finished batch.
func (m *Metrics) BatchDone(d time.Duration, finished time.Time) {
	if m != nil {
		m.batchDuration.Observe(d.Seconds())
		m.lastBatch.Set(float64(finished.Unix()))
	}
}
