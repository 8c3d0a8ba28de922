// Package metrics counts batch progress in a private Prometheus registry and
// exports it in the node-exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"
)

// Metrics holds the run's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	reg *prometheus.Registry

	records        *prometheus.CounterVec
	retries        *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	flushes        prometheus.Counter
	recordDuration prometheus.Histogram
	processed      prometheus.Gauge
	total          prometheus.Gauge
	llmTokens      *prometheus.CounterVec
	llmCost        *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		records: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgenrich_records_total",
				Help: "Records processed in this run by status and reason",
			},
			[]string{"status", "reason"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgenrich_retries_total",
				Help: "External call retries by service and error kind",
			},
			[]string{"service", "kind"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgenrich_cache_lookups_total",
				Help: "Cache lookups by operation and result",
			},
			[]string{"op", "result"},
		),
		flushes: f.NewCounter(prometheus.CounterOpts{
			Name: "orgenrich_flushes_total",
			Help: "Checkpoint flushes written",
		}),
		recordDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "orgenrich_record_duration_seconds",
			Help:    "Wall time spent enriching one record",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		processed: f.NewGauge(prometheus.GaugeOpts{
			Name: "orgenrich_checkpoint_processed",
			Help: "Records committed by the last checkpoint",
		}),
		total: f.NewGauge(prometheus.GaugeOpts{
			Name: "orgenrich_input_records",
			Help: "Records in the input",
		}),
		llmTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgenrich_llm_tokens_total",
				Help: "Anthropic tokens consumed by model and direction",
			},
			[]string{"model", "direction"},
		),
		llmCost: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgenrich_llm_cost_usd_total",
				Help: "Estimated Anthropic spend in USD by model",
			},
			[]string{"model"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// ObserveRecord counts one finished record.
func (m *Metrics) ObserveRecord(status, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(status, reason).Inc()
	m.recordDuration.Observe(d.Seconds())
}

// ObserveRetry counts one retry of an external call.
func (m *Metrics) ObserveRetry(service, kind string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(service, kind).Inc()
}

// ObserveCacheLookup counts one cache lookup.
func (m *Metrics) ObserveCacheLookup(op string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(op, result).Inc()
}

// ObserveFlush records a committed checkpoint.
func (m *Metrics) ObserveFlush(processed, total int) {
	if m == nil {
		return
	}
	m.flushes.Inc()
	m.processed.Set(float64(processed))
	m.total.Set(float64(total))
}

// ObserveLLMUsage counts the tokens and estimated cost of one model call.
func (m *Metrics) ObserveLLMUsage(model string, input, output, cacheWrite, cacheRead int64, usd float64) {
	if m == nil {
		return
	}
	m.llmTokens.WithLabelValues(model, "input").Add(float64(input))
	m.llmTokens.WithLabelValues(model, "output").Add(float64(output))
	m.llmTokens.WithLabelValues(model, "cache_write").Add(float64(cacheWrite))
	m.llmTokens.WithLabelValues(model, "cache_read").Add(float64(cacheRead))
	m.llmCost.WithLabelValues(model).Add(usd)
}

// WriteTextfile writes all metrics to path. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}
