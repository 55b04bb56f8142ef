package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry       *prometheus.Registry
	registryOnce   sync.Once
	metricsEnabled = true

	// PHI shield metrics
	PHIPlaceholdersEmitted *prometheus.CounterVec
	PHIUnmappedPlaceholder *prometheus.CounterVec

	// AI provider metrics
	AIRequestsTotal  *prometheus.CounterVec
	AIRequestErrors  *prometheus.CounterVec
	AIRequestLatency *prometheus.HistogramVec

	// Orchestrator metrics
	StrategySelections *prometheus.CounterVec
	StrategyFallbacks  *prometheus.CounterVec

	// Emotion metrics
	EmotionDetections      *prometheus.CounterVec
	EmotionNeutralFallback prometheus.Counter

	// Risk metrics
	RiskAssessmentsTotal      *prometheus.CounterVec
	RiskSignalsDetected       *prometheus.CounterVec
	RiskSuppressionDowngrades *prometheus.CounterVec

	// Audio metrics
	AudioStreamsActive prometheus.Gauge
	AudioSamplesTotal  prometheus.Counter

	// Pipeline metrics
	SessionsProcessed *prometheus.CounterVec
	SessionDuration   *prometheus.HistogramVec
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		PHIPlaceholdersEmitted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cliniguard_phi_placeholders_emitted_total",
				Help: "Total number of PHI placeholders emitted during de-identification",
			},
			[]string{"category"},
		)

		PHIUnmappedPlaceholder = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cliniguard_phi_unmapped_placeholders_total",
				Help: "Total number of placeholders found during re-identification with no map entry",
			},
			[]string{"category"},
		)

		AIRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cliniguard_ai_requests_total",
				Help: "Total number of AI completion requests",
			},
			[]string{"provider"},
		)

		AIRequestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cliniguard_ai_request_errors_total",
				Help: "Total number of failed AI completion requests",
			},
			[]string{"provider"},
		)

		AIRequestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cliniguard_ai_request_latency_seconds",
				Help:    "Latency of AI completion requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		)

		StrategySelections = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cliniguard_strategy_selections_total",
				Help: "Total number of note processing strategy selections",
			},
			[]string{"strategy"},
		)

		StrategyFallbacks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cliniguard_strategy_fallbacks_total",
				Help: "Total number of strategy fallbacks after a failed primary strategy",
			},
			[]string{"from"},
		)

		EmotionDetections = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cliniguard_emotion_detections_total",
				Help: "Total number of emotion detections by mode",
			},
			[]string{"mode"},
		)

		EmotionNeutralFallback = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cliniguard_emotion_neutral_fallbacks_total",
				Help: "Total number of emotion detections that failed closed to the neutral vector",
			},
		)

		RiskAssessmentsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cliniguard_risk_assessments_total",
				Help: "Total number of risk assessments by final level",
			},
			[]string{"level"},
		)

		RiskSignalsDetected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cliniguard_risk_signals_detected_total",
				Help: "Total number of risk signals by detector type and severity",
			},
			[]string{"type", "severity"},
		)

		RiskSuppressionDowngrades = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cliniguard_risk_suppression_downgrades_total",
				Help: "Total number of false-positive suppression downgrades",
			},
			[]string{"from", "to"},
		)

		AudioStreamsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cliniguard_audio_streams_active",
				Help: "Number of active live audio analysis streams",
			},
		)

		AudioSamplesTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cliniguard_audio_samples_total",
				Help: "Total number of frequency-domain samples ingested",
			},
		)

		SessionsProcessed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cliniguard_sessions_processed_total",
				Help: "Total number of processed clinical sessions by outcome",
			},
			[]string{"outcome"},
		)

		SessionDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cliniguard_session_duration_seconds",
				Help:    "End-to-end duration of session pipeline invocations",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		)

		collectors := []prometheus.Collector{
			PHIPlaceholdersEmitted,
			PHIUnmappedPlaceholder,
			AIRequestsTotal,
			AIRequestErrors,
			AIRequestLatency,
			StrategySelections,
			StrategyFallbacks,
			EmotionDetections,
			EmotionNeutralFallback,
			RiskAssessmentsTotal,
			RiskSignalsDetected,
			RiskSuppressionDowngrades,
			AudioStreamsActive,
			AudioSamplesTotal,
			SessionsProcessed,
			SessionDuration,
		}

		for _, c := range collectors {
			if err := registry.Register(c); err != nil {
				logger.WithError(err).Warn("Failed to register metrics collector")
			}
		}

		logger.Info("Prometheus metrics initialized")
	})
}

// Handler returns the HTTP handler serving the metrics registry
func Handler() http.Handler {
	if registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// SetEnabled toggles metric recording
func SetEnabled(enabled bool) {
	metricsEnabled = enabled
}

// Enabled reports whether metric recording is active
func Enabled() bool {
	return metricsEnabled
}

// ObserveAIRequest records one AI completion request
func ObserveAIRequest(provider string, elapsed time.Duration, err error) {
	if !metricsEnabled || AIRequestsTotal == nil {
		return
	}
	AIRequestsTotal.WithLabelValues(provider).Inc()
	AIRequestLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	if err != nil {
		AIRequestErrors.WithLabelValues(provider).Inc()
	}
}
