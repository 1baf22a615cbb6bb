// Package promadapters implements circulation.MetricsCollector on the Prometheus client.
package promadapters

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

var ErrNilRegisterer = errors.New("registerer must not be nil")

// MetricsCollector creates Prometheus vectors on first use and registers them with its registerer.
//
// Label names are fixed per metric: engine metrics use circulation.MetricLabels, other metrics the
// sorted label keys of their first observation. Missing labels are recorded as empty values and
// unknown labels are dropped. It is safe for concurrent use.
type MetricsCollector struct {
	registerer prometheus.Registerer
	buckets    []float64

	mu         sync.Mutex
	labelNames map[string][]string
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
}

// Option configures a MetricsCollector.
type Option func(*MetricsCollector) error

// WithBuckets sets the histogram buckets in seconds.
func WithBuckets(buckets ...float64) Option {
	return func(m *MetricsCollector) error {
		if len(buckets) == 0 || !slices.IsSorted(buckets) {
			return errors.New("buckets must be non-empty and ascending")
		}

		m.buckets = buckets

		return nil
	}
}

// NewMetricsCollector creates a collector registering with registerer.
func NewMetricsCollector(registerer prometheus.Registerer, options ...Option) (*MetricsCollector, error) {
	if registerer == nil {
		return nil, ErrNilRegisterer
	}

	m := &MetricsCollector{
		registerer: registerer,
		buckets:    []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		labelNames: make(map[string][]string),
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}

	for _, option := range options {
		if err := option(m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := m.labelNamesFor(metric, labels)
	vec, ok := m.histograms[metric]
	if !ok {
		vec = register(m.registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metric,
			Help:    circulation.MetricHelp(metric),
			Buckets: m.buckets,
		}, names))
		m.histograms[metric] = vec
	}

	if vec != nil {
		vec.WithLabelValues(labelValues(names, labels)...).Observe(duration.Seconds())
	}
}

func (m *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := m.labelNamesFor(metric, labels)
	vec, ok := m.counters[metric]
	if !ok {
		vec = register(m.registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metric,
			Help: circulation.MetricHelp(metric),
		}, names))
		m.counters[metric] = vec
	}

	if vec != nil {
		vec.WithLabelValues(labelValues(names, labels)...).Inc()
	}
}

func (m *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := m.labelNamesFor(metric, labels)
	vec, ok := m.gauges[metric]
	if !ok {
		vec = register(m.registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metric,
			Help: circulation.MetricHelp(metric),
		}, names))
		m.gauges[metric] = vec
	}

	if vec != nil {
		vec.WithLabelValues(labelValues(names, labels)...).Set(value)
	}
}

// labelNamesFor returns the fixed label names of metric. The caller holds m.mu.
func (m *MetricsCollector) labelNamesFor(metric string, labels map[string]string) []string {
	if names, ok := m.labelNames[metric]; ok {
		return names
	}

	names, known := circulation.MetricLabels[metric]
	if !known {
		names = make([]string, 0, len(labels))
		for key := range labels {
			names = append(names, key)
		}
		sort.Strings(names)
	}

	m.labelNames[metric] = names

	return names
}

func labelValues(names []string, labels map[string]string) []string {
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = labels[name]
	}

	return values
}

// register registers c, reusing an identical collector that is already registered.
// A conflicting registration yields nil and the metric is not recorded.
func register[C prometheus.Collector](registerer prometheus.Registerer, c C) C {
	err := registerer.Register(c)
	if err == nil {
		return c
	}

	var alreadyRegistered prometheus.AlreadyRegisteredError
	if errors.As(err, &alreadyRegistered) {
		if existing, ok := alreadyRegistered.ExistingCollector.(C); ok {
			return existing
		}
	}

	var none C

	return none
}

var _ circulation.MetricsCollector = (*MetricsCollector)(nil)
