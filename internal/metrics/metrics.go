package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FeedFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zennpost_feed_fetch_total",
		Help: "Feed retrievals by outcome.",
	}, []string{"outcome"})

	FeedFetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zennpost_feed_fetch_duration_seconds",
		Help:    "Feed retrieval latency, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	GenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zennpost_generation_duration_seconds",
		Help:    "Time to a completed post.",
		Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"provider", "mode"})

	GenerationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zennpost_generation_errors_total",
		Help: "Generation failures by kind.",
	}, []string{"provider", "kind"})

	PipelineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zennpost_pipeline_runs_total",
		Help: "Pipeline invocations by account kind and outcome.",
	}, []string{"account_kind", "outcome"})
)

// MustRegister registers all collectors.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FeedFetchTotal,
		FeedFetchDuration,
		GenerationDuration,
		GenerationErrors,
		PipelineRuns,
	)
}

// ObserveFeedFetch records one feed retrieval. outcome is "success" or an error kind.
func ObserveFeedFetch(outcome string, start time.Time) {
	if outcome == "" {
		outcome = "unknown"
	}
	FeedFetchTotal.WithLabelValues(outcome).Inc()
	FeedFetchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// ObserveGeneration records a finished generation.
func ObserveGeneration(provider, mode string, start time.Time) {
	if provider == "" {
		provider = "unknown"
	}
	GenerationDuration.WithLabelValues(provider, mode).Observe(time.Since(start).Seconds())
}

// IncGenerationError counts a failed generation.
func IncGenerationError(provider, kind string) {
	if provider == "" {
		provider = "unknown"
	}
	GenerationErrors.WithLabelValues(provider, kind).Inc()
}

// IncPipelineRun counts a pipeline invocation.
func IncPipelineRun(accountKind, outcome string) {
	PipelineRuns.WithLabelValues(accountKind, outcome).Inc()
}
