// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "senior_mhealth"

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Session metrics
	SessionsTotal    prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionsComplete *prometheus.CounterVec
	SessionsFailed   *prometheus.CounterVec
	SessionDuration  prometheus.Histogram

	// Stage metrics
	StageDuration  *prometheus.HistogramVec
	StageFallbacks *prometheus.CounterVec
	StageTimeouts  *prometheus.CounterVec

	// Fusion metrics
	IndicatorsDegraded *prometheus.CounterVec
	ExpertReviewTotal  prometheus.Counter

	// Neural classifier metrics
	ModelLoads        *prometheus.CounterVec
	ModelLoadFailures *prometheus.CounterVec
	InferenceWindows  *prometheus.CounterVec

	// External call metrics
	LLMCallLatency *prometheus.HistogramVec
	LLMCallErrors  *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of analysis sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently running analysis sessions",
		}),
		SessionsComplete: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_complete_total",
			Help:      "Total number of completed sessions",
		}, []string{"status"}),
		SessionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of failed sessions",
		}, []string{"reason"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "End-to-end analysis session duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Per-stage processing duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
		}, []string{"stage"}),
		StageFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_fallbacks_total",
			Help:      "Total number of stages that resolved to their fallback",
		}, []string{"stage", "reason"}),
		StageTimeouts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_timeouts_total",
			Help:      "Total number of stage timeouts",
		}, []string{"stage"}),

		IndicatorsDegraded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indicators_degraded_total",
			Help:      "Total number of degraded indicators produced",
		}, []string{"indicator"}),
		ExpertReviewTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expert_review_total",
			Help:      "Total number of reports flagged for expert review",
		}),

		ModelLoads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Total number of classifier model loads",
		}, []string{"task", "source"}),
		ModelLoadFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_load_failures_total",
			Help:      "Total number of classifier model load failures",
		}, []string{"task"}),
		InferenceWindows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_windows_total",
			Help:      "Total number of classifier inference windows scored",
		}, []string{"task"}),

		LLMCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_latency_seconds",
			Help:      "External language-model call latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"model"}),
		LLMCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_call_errors_total",
			Help:      "Total number of external language-model call failures",
		}, []string{"model", "error_type"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a new analysis session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending with its terminal status.
func (m *Metrics) RecordSessionEnd(status string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
	m.SessionsComplete.WithLabelValues(status).Inc()
}

// RecordSessionFailure records a session-fatal failure.
func (m *Metrics) RecordSessionFailure(reason string) {
	m.SessionsFailed.WithLabelValues(reason).Inc()
}

// RecordStage records one stage's duration.
func (m *Metrics) RecordStage(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordStageFallback records a stage resolving to its fallback value.
func (m *Metrics) RecordStageFallback(stage, reason string) {
	m.StageFallbacks.WithLabelValues(stage, reason).Inc()
}

// RecordStageTimeout records a stage deadline being exceeded.
func (m *Metrics) RecordStageTimeout(stage string) {
	m.StageTimeouts.WithLabelValues(stage).Inc()
	m.StageFallbacks.WithLabelValues(stage, "timeout").Inc()
}

// RecordIndicatorDegraded records a degraded indicator in a final report.
func (m *Metrics) RecordIndicatorDegraded(indicator string) {
	m.IndicatorsDegraded.WithLabelValues(indicator).Inc()
}

// RecordExpertReview records a report flagged for expert review.
func (m *Metrics) RecordExpertReview() {
	m.ExpertReviewTotal.Inc()
}

// RecordModelLoad records a successful classifier model load.
func (m *Metrics) RecordModelLoad(task, source string) {
	m.ModelLoads.WithLabelValues(task, source).Inc()
}

// RecordModelLoadFailure records a classifier model load failure.
func (m *Metrics) RecordModelLoadFailure(task string) {
	m.ModelLoadFailures.WithLabelValues(task).Inc()
}

// RecordInferenceWindows records windows scored for one classify call.
func (m *Metrics) RecordInferenceWindows(task string, n int) {
	m.InferenceWindows.WithLabelValues(task).Add(float64(n))
}

// RecordLLMCall records an external language-model call.
func (m *Metrics) RecordLLMCall(model string, err error, latencySeconds float64, errorType string) {
	m.LLMCallLatency.WithLabelValues(model).Observe(latencySeconds)
	if err != nil {
		m.LLMCallErrors.WithLabelValues(model, errorType).Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
