// Package metrics defines Prometheus metrics for the branch server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "branch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "branch_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "branch_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	TagWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "branch_tag_writes_total",
			Help: "Tag fact writes by store and outcome",
		},
		[]string{"store", "outcome"},
	)

	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "branch_scans_total",
			Help: "Repository scans by outcome",
		},
		[]string{"outcome"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "branch_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)

	FactCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "branch_facts_total",
			Help: "Total unified fact count",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		TagWritesTotal, ScansTotal,
		WSConnections, FactCount,
	)
}
