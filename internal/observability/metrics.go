// Package observability provides Prometheus metrics for the validator.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of one validator. Each instance owns its registry so tests
// and several validators in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	// Round metrics
	RoundsTotal   *prometheus.CounterVec
	RoundErrors   *prometheus.CounterVec
	RoundDuration *prometheus.HistogramVec

	// Miner metrics
	MinerResponses *prometheus.CounterVec
	MinerScore     *prometheus.GaugeVec

	// Weight metrics
	WeightSubmissions *prometheus.CounterVec
	LastWeightBlock   prometheus.Gauge

	// Persistence metrics
	RecordsDropped prometheus.Counter
	RecordsWritten prometheus.Counter
	DBWriteErrors  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "yieldcore"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RoundsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "completed_total",
			Help:      "Total number of completed rounds by miner kind and request type",
		}, []string{"kind", "request_type"}),
		RoundErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "errors_total",
			Help:      "Total number of aborted rounds by miner kind",
		}, []string{"kind"}),
		RoundDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "duration_seconds",
			Help:      "Round duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		MinerResponses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "miners",
			Name:      "responses_total",
			Help:      "Total number of miner responses by scoring status",
		}, []string{"status"}),
		MinerScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "miners",
			Name:      "moving_average_score",
			Help:      "Moving average score per miner uid",
		}, []string{"uid"}),

		WeightSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "weights",
			Name:      "submissions_total",
			Help:      "Total number of weight submissions by result",
		}, []string{"result"}),
		LastWeightBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "weights",
			Name:      "last_set_block",
			Help:      "Block at which weights were last accepted",
		}),

		RecordsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "records_dropped_total",
			Help:      "Total number of round records dropped because the recorder buffer was full",
		}),
		RecordsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "records_written_total",
			Help:      "Total number of round records written to the database",
		}),
		DBWriteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "write_errors_total",
			Help:      "Total number of failed database writes by operation",
		}, []string{"operation"}),
	}
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving this instance's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
