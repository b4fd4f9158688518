// Package metrics exports mirror run statistics in Prometheus format.
//
// A [Collector] implements both observability hook interfaces. Register it
// with observability.SetFetchHooks and observability.SetSchedulerHooks, run
// the mirror, then write the gathered values with [Collector.WriteTextfile]
// for node_exporter's textfile collector, or expose [Collector.Handler].
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/matzehuels/nixmirror/pkg/errors"
)

const namespace = "nixmirror"

// Collector records fetch and scheduler events on its own registry.
type Collector struct {
	registry *prometheus.Registry

	FetchesTotal    *prometheus.CounterVec
	FetchBytes      prometheus.Counter
	FetchDuration   prometheus.Histogram
	SkippedTotal    prometheus.Counter
	ResolvedTotal   *prometheus.CounterVec
	ReferencesTotal prometheus.Counter
	Waves           prometheus.Gauge
	FrontierSize    prometheus.Gauge
	WaveDuration    prometheus.Histogram
	LastSuccess     prometheus.Gauge
}

// New creates a Collector with every metric registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "requests_total",
				Help:      "Downloads attempted, by result (ok or error kind)",
			},
			[]string{"result"},
		),

		FetchBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "bytes_total",
				Help:      "Response body bytes received",
			},
		),

		FetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "duration_seconds",
				Help:      "Download duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),

		SkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "skipped_total",
				Help:      "Files already present in the mirror",
			},
		),

		ResolvedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "resolved_total",
				Help:      "Identifiers resolved, by result (ok or error kind)",
			},
			[]string{"result"},
		),

		ReferencesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "references_total",
				Help:      "References reported by resolved identifiers, before de-duplication",
			},
		),

		Waves: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "waves",
				Help:      "Waves started in the current run",
			},
		),

		FrontierSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "frontier_size",
				Help:      "Identifiers in the wave currently running",
			},
		),

		WaveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "wave_duration_seconds",
				Help:      "Wave duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
			},
		),

		LastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last run that completed without error",
			},
		),
	}

	c.registry.MustRegister(
		c.FetchesTotal,
		c.FetchBytes,
		c.FetchDuration,
		c.SkippedTotal,
		c.ResolvedTotal,
		c.ReferencesTotal,
		c.Waves,
		c.FrontierSize,
		c.WaveDuration,
		c.LastSuccess,
	)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics over HTTP.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteTextfile atomically writes the current values to path in the text
// exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return errors.Wrap(errors.ErrCodeFilesystem, err, "write metrics to %s", path)
	}
	return nil
}

// MarkSuccess records the current time as the last successful run.
func (c *Collector) MarkSuccess() {
	c.LastSuccess.SetToCurrentTime()
}

// Snapshot is a point-in-time summary of a collector's counters.
type Snapshot struct {
	Fetched  int   // Successful downloads
	Failed   int   // Failed downloads
	Skipped  int   // Files already present
	Bytes    int64 // Body bytes received
	Resolved int   // Identifiers resolved successfully
}

// Snapshot reads the current counter values.
func (c *Collector) Snapshot() Snapshot {
	var s Snapshot
	families, err := c.registry.Gather()
	if err != nil {
		return s
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			v := m.GetCounter().GetValue()
			switch mf.GetName() {
			case namespace + "_fetch_requests_total":
				if label(m, "result") == "ok" {
					s.Fetched += int(v)
				} else {
					s.Failed += int(v)
				}
			case namespace + "_fetch_skipped_total":
				s.Skipped += int(v)
			case namespace + "_fetch_bytes_total":
				s.Bytes += int64(v)
			case namespace + "_scheduler_resolved_total":
				if label(m, "result") == "ok" {
					s.Resolved += int(v)
				}
			}
		}
	}
	return s
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return errors.Kind(err)
}

// OnFetchStart implements observability.FetchHooks.
func (c *Collector) OnFetchStart(context.Context, string) {}

// OnFetchComplete implements observability.FetchHooks.
func (c *Collector) OnFetchComplete(_ context.Context, _ string, bytes int64, d time.Duration, err error) {
	c.FetchesTotal.WithLabelValues(result(err)).Inc()
	c.FetchBytes.Add(float64(bytes))
	c.FetchDuration.Observe(d.Seconds())
}

// OnFetchSkip implements observability.FetchHooks.
func (c *Collector) OnFetchSkip(context.Context, string) {
	c.SkippedTotal.Inc()
}

// OnWaveStart implements observability.SchedulerHooks.
func (c *Collector) OnWaveStart(_ context.Context, wave, size int) {
	c.Waves.Set(float64(wave))
	c.FrontierSize.Set(float64(size))
}

// OnWaveComplete implements observability.SchedulerHooks.
func (c *Collector) OnWaveComplete(_ context.Context, _, _ int, d time.Duration) {
	c.WaveDuration.Observe(d.Seconds())
}

// OnResolve implements observability.SchedulerHooks.
func (c *Collector) OnResolve(_ context.Context, _ string, references int, err error) {
	c.ResolvedTotal.WithLabelValues(result(err)).Inc()
	c.ReferencesTotal.Add(float64(references))
}
