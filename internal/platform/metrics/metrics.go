// Package metrics provides observability for the pet server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "petguild"

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Scheduler passes
	PassesTotal      *prometheus.CounterVec
	PassDuration     *prometheus.HistogramVec
	EntitiesTotal    *prometheus.CounterVec
	PassFailures     *prometheus.CounterVec
	LastPassUnixTime *prometheus.GaugeVec

	// Interactive operations
	OperationsTotal *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec

	// Economy
	TokensCredited *prometheus.CounterVec
	TokensDebited  *prometheus.CounterVec

	// Events and transport
	EventsPublished  *prometheus.CounterVec
	EventPersistErrs prometheus.Counter
	WSConnections    prometheus.Gauge
	WSMessages       *prometheus.CounterVec
	SnapshotsTotal   *prometheus.CounterVec
	CacheWrites      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates and registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		PassesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler",
			Name: "passes_total",
			Help: "Scheduler passes run, by job.",
		}, []string{"job"}),
		PassDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler",
			Name:    "pass_duration_seconds",
			Help:    "Wall time of one scheduler pass.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		EntitiesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler",
			Name: "entities_total",
			Help: "Entities evaluated by scheduler passes.",
		}, []string{"job"}),
		PassFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler",
			Name: "entity_failures_total",
			Help: "Entities whose evaluation failed during a pass.",
		}, []string{"job"}),
		LastPassUnixTime: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scheduler",
			Name: "last_pass_timestamp_seconds",
			Help: "Completion time of the latest pass.",
		}, []string{"job"}),
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine",
			Name: "operations_total",
			Help: "Interactive operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		RejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine",
			Name: "rejections_total",
			Help: "Business-rule rejections by reason.",
		}, []string{"reason"}),
		TokensCredited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger",
			Name: "tokens_credited_total",
			Help: "Tokens credited, by source.",
		}, []string{"source"}),
		TokensDebited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger",
			Name: "tokens_debited_total",
			Help: "Tokens spent, by purpose.",
		}, []string{"purpose"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events",
			Name: "published_total",
			Help: "Lifecycle events appended to the log.",
		}, []string{"type"}),
		EventPersistErrs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events",
			Name: "persist_errors_total",
			Help: "Events that failed to reach durable storage.",
		}),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ws",
			Name: "connections",
			Help: "Active websocket clients.",
		}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws",
			Name: "messages_total",
			Help: "Websocket messages by direction.",
		}, []string{"direction"}),
		SnapshotsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage",
			Name: "snapshots_total",
			Help: "Tenant snapshots written, by outcome.",
		}, []string{"outcome"}),
		CacheWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache",
			Name: "writes_total",
			Help: "Pet status cache writes, by outcome.",
		}, []string{"outcome"}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// NewNop registers on a private registry. Used by tests and tools.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObservePass records one completed scheduler pass.
func (m *Metrics) ObservePass(job string, entities, failures int, took time.Duration) {
	m.PassesTotal.WithLabelValues(job).Inc()
	m.PassDuration.WithLabelValues(job).Observe(took.Seconds())
	m.EntitiesTotal.WithLabelValues(job).Add(float64(entities))
	m.PassFailures.WithLabelValues(job).Add(float64(failures))
	m.LastPassUnixTime.WithLabelValues(job).SetToCurrentTime()
}

// ObserveOperation records an interactive operation outcome.
// An empty reason means success.
func (m *Metrics) ObserveOperation(op, reason string) {
	if reason == "" {
		m.OperationsTotal.WithLabelValues(op, "ok").Inc()
		return
	}
	m.OperationsTotal.WithLabelValues(op, "rejected").Inc()
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveFailure records an operation that failed for a non-business reason.
func (m *Metrics) ObserveFailure(op string) {
	m.OperationsTotal.WithLabelValues(op, "error").Inc()
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
