// Package metrics provides Prometheus metrics collection for the medical data service.
// It exports HTTP request metrics:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// and domain metrics for disease view resolution, data imports and
// service registry heartbeats.
//
// All metrics are automatically registered with the Prometheus default registry
// during package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen since last cleanup)",
		},
	)

	DiseaseViewResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disease_view_resolutions_total",
			Help: "Composite disease view resolutions by outcome",
		},
		[]string{"outcome"},
	)

	DiseaseViewAmbiguous = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "disease_view_ambiguous_total",
			Help: "Resolutions where several disease records shared the requested name",
		},
	)

	DataImportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "data_import_duration_seconds",
			Help:    "Duration of CSV imports into the record store",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	DataImportRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "data_import_rows",
			Help: "Rows loaded by the last successful import, by collection",
		},
		[]string{"collection"},
	)

	RegistryRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_requests_total",
			Help: "Service registry calls by operation and result",
		},
		[]string{"operation", "result"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(DiseaseViewResolutions)
	prometheus.MustRegister(DiseaseViewAmbiguous)
	prometheus.MustRegister(DataImportDuration)
	prometheus.MustRegister(DataImportRows)
	prometheus.MustRegister(RegistryRequests)
}
