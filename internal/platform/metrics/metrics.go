// Package metrics exposes the Prometheus instrumentation for the server.
// Metrics are package-level collectors registered once at init; handlers
// and services update them directly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofhir_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geofhir_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})

	AnalysisRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofhir_analysis_runs_total",
		Help: "Correlation runs by outcome",
	}, []string{"status"})
	AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geofhir_analysis_duration_seconds",
		Help:    "Correlation run duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	AnalysisPatients = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geofhir_analysis_patients",
		Help:    "Patients per correlation run",
		Buckets: []float64{10, 100, 1000, 10000, 100000},
	})

	DatasetsRegistered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geofhir_datasets_registered",
		Help: "Datasets currently registered",
	})
	FeaturesIndexed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geofhir_features_indexed",
		Help: "Features indexed across all registered datasets",
	})

	ResourcesIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofhir_fhir_resources_ingested_total",
		Help: "FHIR resources ingested by resource type",
	}, []string{"type"})
	ResourcesSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geofhir_fhir_resources_skipped_total",
		Help: "FHIR resources skipped during ingestion",
	})
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AnalysisRunsTotal)
	prometheus.MustRegister(AnalysisDuration)
	prometheus.MustRegister(AnalysisPatients)
	prometheus.MustRegister(DatasetsRegistered)
	prometheus.MustRegister(FeaturesIndexed)
	prometheus.MustRegister(ResourcesIngestedTotal)
	prometheus.MustRegister(ResourcesSkippedTotal)
}

// Handler returns the /metrics scrape handler.
func Handler() http.Handler { return promhttp.Handler() }
