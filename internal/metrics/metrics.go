// Package metrics provides Prometheus metrics for the sensordash server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the server reports. A nil *Metrics is valid and records nothing,
// so components can be built without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry

	IngestTotal         *prometheus.CounterVec
	IngestDuration      *prometheus.HistogramVec
	QueriesTotal        *prometheus.CounterVec
	AlertEvaluations    *prometheus.CounterVec
	EdgesTotal          *prometheus.CounterVec
	PurgeRunsTotal      *prometheus.CounterVec
	PurgedRowsTotal     *prometheus.CounterVec
	NotifyFailuresTotal *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors under namespace and registers them on a fresh registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		IngestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "readings_total",
				Help:      "Total number of ingested readings",
			},
			[]string{"sensor_class", "status"}, // status: success, invalid, unauthorized, storage_error
		),
		IngestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "duration_seconds",
				Help:      "Duration of reading ingestion including the storage write",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"sensor_class"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "requests_total",
				Help:      "Total number of time-window queries",
			},
			[]string{"sensor_class", "window", "status"},
		),
		AlertEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alert",
				Name:      "evaluations_total",
				Help:      "Total number of alert evaluations",
			},
			[]string{"sensor_class", "result"}, // result: alert, clear, unknown, error
		),
		EdgesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proximity",
				Name:      "edges_total",
				Help:      "Total number of proximity rising edges",
			},
			[]string{"direction"},
		),
		PurgeRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retention",
				Name:      "purge_runs_total",
				Help:      "Total number of per-table purge attempts",
			},
			[]string{"table", "status"},
		),
		PurgedRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retention",
				Name:      "purged_rows_total",
				Help:      "Total number of rows removed by retention",
			},
			[]string{"table"},
		),
		NotifyFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "failures_total",
				Help:      "Total number of door notifications that could not be published",
			},
			[]string{"backend"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.IngestTotal,
		m.IngestDuration,
		m.QueriesTotal,
		m.AlertEvaluations,
		m.EdgesTotal,
		m.PurgeRunsTotal,
		m.PurgedRowsTotal,
		m.NotifyFailuresTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler returns an HTTP handler for exposing the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) ObserveIngest(class, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(class, status).Inc()
	m.IngestDuration.WithLabelValues(class).Observe(d.Seconds())
}

func (m *Metrics) ObserveQuery(class, window, status string) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(class, window, status).Inc()
}

func (m *Metrics) ObserveAlert(class, result string) {
	if m == nil {
		return
	}
	m.AlertEvaluations.WithLabelValues(class, result).Inc()
}

func (m *Metrics) ObserveEdge(direction string) {
	if m == nil {
		return
	}
	m.EdgesTotal.WithLabelValues(direction).Inc()
}

// ObservePurge records one table purge. rows is ignored when status is not "success".
func (m *Metrics) ObservePurge(table, status string, rows int64) {
	if m == nil {
		return
	}
	m.PurgeRunsTotal.WithLabelValues(table, status).Inc()
	if status == "success" {
		m.PurgedRowsTotal.WithLabelValues(table).Add(float64(rows))
	}
}

func (m *Metrics) ObserveNotifyFailure(backend string) {
	if m == nil {
		return
	}
	m.NotifyFailuresTotal.WithLabelValues(backend).Inc()
}

func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
