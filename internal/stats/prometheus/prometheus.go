// Package prometheus provides a Prometheus-based stats collector.
package prometheus

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/discochess/movegrade/internal/stats"
)

// Collector implements stats.Collector using Prometheus metrics.
// Metrics are created on first use and registered with the registry.
type Collector struct {
	registry prometheus.Registerer
	gatherer prometheus.Gatherer

	mu         sync.RWMutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

// Compile-time check that Collector implements stats.Collector.
var _ stats.Collector = (*Collector)(nil)

// help holds descriptions for the metrics this module emits.
var help = map[string]string{
	stats.MetricBatches:           "Batches claimed by the coordinator.",
	stats.MetricGamesClaimed:      "Games claimed for analysis.",
	stats.MetricGamesAnalyzed:     "Games analyzed successfully.",
	stats.MetricGamesFailed:       "Game analyses that failed and were returned to the backlog.",
	stats.MetricGamesDeferred:     "Games deferred to a later drain after repeated failures.",
	stats.MetricCommitFailures:    "Batch commits that failed and were rolled back.",
	stats.MetricClaimFailures:     "Batch claims that failed.",
	stats.MetricAnalysisSeconds:   "Wall time spent analyzing one game.",
	stats.MetricEngineWaitSeconds: "Time spent waiting for a free engine.",
	stats.MetricEnginesInUse:      "Engines currently owned by workers.",
	stats.MetricEnginesDiscarded:  "Engines discarded after a failure.",
	stats.MetricStaleSwept:        "Orphaned claims reset by the stale sweep.",
	stats.MetricCacheHits:         "Analysis cache hits.",
	stats.MetricCacheMisses:       "Analysis cache misses.",
	stats.MetricCacheSize:         "Entries in the analysis cache.",
}

// buckets holds histogram buckets for metrics that do not fit the defaults.
var buckets = map[string][]float64{
	stats.MetricAnalysisSeconds: prometheus.ExponentialBuckets(0.5, 2, 12),
}

// New creates a new Prometheus collector.
// If registry is nil, a fresh registry is created so that Handler serves
// only this module's metrics.
func New(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Collector{
		registry:   registry,
		gatherer:   registry,
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Handler returns an HTTP handler exposing the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// IncCounter increments a counter metric.
func (c *Collector) IncCounter(name string, delta int64) {
	counter := getOrCreate(c, c.counters, name, func() prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: helpFor(name)})
	})
	counter.Add(float64(delta))
}

// SetGauge sets a gauge metric.
func (c *Collector) SetGauge(name string, value int64) {
	gauge := getOrCreate(c, c.gauges, name, func() prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: helpFor(name)})
	})
	gauge.Set(float64(value))
}

// ObserveHistogram records a value in a histogram.
func (c *Collector) ObserveHistogram(name string, value float64) {
	histogram := getOrCreate(c, c.histograms, name, func() prometheus.Histogram {
		b, ok := buckets[name]
		if !ok {
			b = prometheus.DefBuckets
		}
		return prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: helpFor(name), Buckets: b})
	})
	histogram.Observe(value)
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return name
}

// getOrCreate returns the metric registered under name, creating and
// registering it on first use. An already registered collector of the same
// type is reused.
func getOrCreate[M prometheus.Collector](c *Collector, metrics map[string]M, name string, create func() M) M {
	c.mu.RLock()
	m, ok := metrics[name]
	c.mu.RUnlock()
	if ok {
		return m
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok = metrics[name]; ok {
		return m
	}

	m = create()
	if err := c.registry.Register(m); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(M); ok {
				m = existing
			}
		}
	}
	metrics[name] = m
	return m
}
