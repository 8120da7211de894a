package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazecast_provider_api_calls_total",
			Help: "Total external provider API calls",
		},
		[]string{"provider", "status"},
	)

	ProviderAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hazecast_provider_api_latency_seconds",
			Help:    "External provider API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazecast_records_ingested_total",
			Help: "Total source records written to the store",
		},
		[]string{"source"},
	)

	PredictionsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazecast_predictions_generated_total",
			Help: "Total predictions generated per horizon",
		},
		[]string{"horizon"},
	)

	PredictionsScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hazecast_predictions_scored_total",
			Help: "Total predictions scored against realized readings",
		},
	)

	DegradedAssemblies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazecast_degraded_assemblies_total",
			Help: "Feature assemblies that fell back for a source",
		},
		[]string{"source"},
	)

	BenchmarkJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazecast_benchmark_jobs_total",
			Help: "Benchmark jobs by terminal state",
		},
		[]string{"state"},
	)
)
