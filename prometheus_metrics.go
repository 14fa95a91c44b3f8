package fairlock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements the Metrics interface using Prometheus
type PrometheusMetrics struct {
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
// If registry is nil, uses the default Prometheus registry
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer.(*prometheus.Registry)
	}

	pm := &PrometheusMetrics{
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		registry:   registry,
	}

	pm.registerDefaultMetrics()
	return pm
}

// registerDefaultMetrics registers all standard fairlock metrics
func (p *PrometheusMetrics) registerDefaultMetrics() {
	// Acquisition counts
	p.counters[MetricAcquireSuccess] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairlock",
			Subsystem: "acquire",
			Name:      "success_total",
			Help:      "Total number of successful lock acquisitions",
		},
		[]string{"resource"},
	)

	p.counters[MetricAcquireFailed] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairlock",
			Subsystem: "acquire",
			Name:      "failed_total",
			Help:      "Total number of failed lock acquisitions",
		},
		[]string{"resource"},
	)

	p.counters[MetricRollback] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairlock",
			Subsystem: "acquire",
			Name:      "rollback_total",
			Help:      "Total number of partial acquisitions rolled back",
		},
		[]string{"resource"},
	)

	p.counters[MetricExtendSuccess] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairlock",
			Subsystem: "extend",
			Name:      "success_total",
			Help:      "Total number of successful lock extensions",
		},
		[]string{"resource"},
	)

	p.counters[MetricExtendFailed] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairlock",
			Subsystem: "extend",
			Name:      "failed_total",
			Help:      "Total number of failed lock extensions",
		},
		[]string{"resource"},
	)

	p.counters[MetricAcquireRetries] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairlock",
			Subsystem: "acquire",
			Name:      "retries_total",
			Help:      "Total number of acquisition retries",
		},
		[]string{"resource"},
	)

	p.counters[MetricReleaseSuccess] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairlock",
			Subsystem: "release",
			Name:      "success_total",
			Help:      "Total number of lock releases",
		},
		[]string{"resource"},
	)

	p.counters[MetricAutoExtendTick] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairlock",
			Subsystem: "autoextend",
			Name:      "ticks_total",
			Help:      "Total number of auto-extend renewals attempted",
		},
		[]string{"resource"},
	)

	p.counters[MetricFifoAborted] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairlock",
			Subsystem: "fifo",
			Name:      "aborted_total",
			Help:      "Total number of FIFO acquisitions aborted after exhausting retries",
		},
		[]string{"resource"},
	)

	p.counters[MetricInstanceError] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairlock",
			Subsystem: "instance",
			Name:      "errors_total",
			Help:      "Total number of instance communication errors",
		},
		[]string{"operation"},
	)

	// Timing histograms
	p.histograms[MetricAcquireDuration] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fairlock",
			Subsystem: "acquire",
			Name:      "duration_seconds",
			Help:      "Lock acquisition duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"resource"},
	)

	p.histograms[MetricFifoWaitTime] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fairlock",
			Subsystem: "fifo",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting in the FIFO queue in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"resource"},
	)

	// Gauge metrics
	p.gauges[MetricQueueDepth] = promauto.With(p.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fairlock",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of occupied slots observed in a FIFO queue",
		},
		[]string{"resource"},
	)

	p.gauges[MetricFifoPosition] = promauto.With(p.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fairlock",
			Subsystem: "fifo",
			Name:      "position",
			Help:      "Current queue position of an in-flight FIFO acquisition",
		},
		[]string{"resource"},
	)
}

// Increment increments a Prometheus counter
func (p *PrometheusMetrics) Increment(name string, tags ...string) {
	counter, ok := p.counters[name]
	if !ok {
		// Create dynamic counter if it doesn't exist
		counter = promauto.With(p.registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fairlock",
				Name:      name,
				Help:      "Dynamic counter: " + name,
			},
			p.extractLabels(tags),
		)
		p.counters[name] = counter
	}

	labels := p.extractLabelValues(tags)
	counter.With(labels).Inc()
}

// Gauge sets a Prometheus gauge value
func (p *PrometheusMetrics) Gauge(name string, value float64, tags ...string) {
	gauge, ok := p.gauges[name]
	if !ok {
		// Create dynamic gauge if it doesn't exist
		gauge = promauto.With(p.registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fairlock",
				Name:      name,
				Help:      "Dynamic gauge: " + name,
			},
			p.extractLabels(tags),
		)
		p.gauges[name] = gauge
	}

	labels := p.extractLabelValues(tags)
	gauge.With(labels).Set(value)
}

// Histogram records a value in a Prometheus histogram
func (p *PrometheusMetrics) Histogram(name string, value float64, tags ...string) {
	histogram, ok := p.histograms[name]
	if !ok {
		// Create dynamic histogram if it doesn't exist
		histogram = promauto.With(p.registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fairlock",
				Name:      name,
				Help:      "Dynamic histogram: " + name,
				Buckets:   prometheus.DefBuckets,
			},
			p.extractLabels(tags),
		)
		p.histograms[name] = histogram
	}

	labels := p.extractLabelValues(tags)
	histogram.With(labels).Observe(value)
}

// Timing records a duration in a Prometheus histogram
func (p *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...string) {
	p.Histogram(name, duration.Seconds(), tags...)
}

// extractLabels extracts label names from tags (every even index)
func (p *PrometheusMetrics) extractLabels(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	labels := make([]string, 0, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		labels = append(labels, tags[i])
	}
	return labels
}

// extractLabelValues creates a label map from tags (key-value pairs)
func (p *PrometheusMetrics) extractLabelValues(tags []string) prometheus.Labels {
	if len(tags) == 0 {
		return prometheus.Labels{}
	}

	labels := make(prometheus.Labels)
	for i := 0; i < len(tags)-1; i += 2 {
		labels[tags[i]] = tags[i+1]
	}
	return labels
}

// GetRegistry returns the underlying Prometheus registry
func (p *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return p.registry
}
