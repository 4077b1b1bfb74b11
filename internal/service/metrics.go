package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the resolution and pipeline
// path. Pass to HookService and handlers that need to record them.
type Metrics struct {
	ResolutionsTotal   *prometheus.CounterVec
	ResolutionDuration prometheus.Histogram
	PipelineVerdicts   *prometheus.CounterVec
	PipelineDuration   *prometheus.HistogramVec
	StepOutcomes       *prometheus.CounterVec
	CacheSize          prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ResolutionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "railguard",
				Name:      "resolutions_total",
				Help:      "Total policy resolutions by result",
			},
			[]string{"result"}, // result=matched/empty/error
		),
		ResolutionDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "railguard",
				Name:      "resolution_duration_seconds",
				Help:      "Policy resolution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		PipelineVerdicts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "railguard",
				Name:      "pipeline_verdicts_total",
				Help:      "Total pipeline executions by mode and verdict",
			},
			[]string{"mode", "verdict"},
		),
		PipelineDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "railguard",
				Name:      "pipeline_duration_seconds",
				Help:      "Pipeline execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		StepOutcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "railguard",
				Name:      "guardrail_step_outcomes_total",
				Help:      "Total guardrail step outcomes by guardrail and outcome",
			},
			[]string{"guardrail", "outcome"},
		),
		CacheSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "railguard",
				Name:      "resolution_cache_entries",
				Help:      "Number of cached policy resolutions",
			},
		),
	}
}
