// Package metrics exposes Prometheus collectors for the connection pipeline.
//
// A nil *Metrics is valid and records nothing, so packages can take one
// without checking whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch modes.
const (
	ModeWorker = "worker"
	ModeSync   = "sync"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "docroot").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for connection duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "docroot",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors.
type Metrics struct {
	connections prometheus.Counter
	dispatched  *prometheus.CounterVec
	results     *prometheus.CounterVec
	bytesSent   prometheus.Counter
	delegations *prometheus.CounterVec
	busySlots   prometheus.Gauge
	poolSize    prometheus.Gauge
	duration    *prometheus.HistogramVec
}

// New registers the collectors and returns them.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_total",
			Help:        "Total number of accepted connections",
			ConstLabels: config.ConstLabels,
		}),

		dispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatched_total",
			Help:        "Connections dispatched, by mode (worker or sync)",
			ConstLabels: config.ConstLabels,
		}, []string{"mode"}),

		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Handled connections, by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "body_bytes_sent_total",
			Help:        "Total static body bytes written to clients",
			ConstLabels: config.ConstLabels,
		}),

		delegations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "delegations_total",
			Help:        "Interpreter delegations, by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		busySlots: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "busy_slots",
			Help:        "Number of worker slots currently serving a connection",
			ConstLabels: config.ConstLabels,
		}),

		poolSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pool_slots",
			Help:        "Number of worker slots",
			ConstLabels: config.ConstLabels,
		}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connection_duration_seconds",
			Help:        "Time from dispatch to connection close",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"result"}),
	}
}

// ConnectionAccepted counts one accepted connection.
func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// Dispatched counts one connection dispatched in mode.
func (m *Metrics) Dispatched(mode string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(mode).Inc()
}

// Handled records the result and duration of one connection.
func (m *Metrics) Handled(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(result).Inc()
	m.duration.WithLabelValues(result).Observe(d.Seconds())
}

// BytesSent adds n streamed body bytes.
func (m *Metrics) BytesSent(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesSent.Add(float64(n))
}

// Delegated counts one interpreter delegation with its outcome.
func (m *Metrics) Delegated(outcome string) {
	if m == nil {
		return
	}
	m.delegations.WithLabelValues(outcome).Inc()
}

// SetBusySlots reports the number of busy worker slots.
func (m *Metrics) SetBusySlots(n int) {
	if m == nil {
		return
	}
	m.busySlots.Set(float64(n))
}

// SetPoolSize reports the number of worker slots.
func (m *Metrics) SetPoolSize(n int) {
	if m == nil {
		return
	}
	m.poolSize.Set(float64(n))
}
