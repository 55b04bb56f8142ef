package risk

import (
	"context"
	"time"

	"cliniguard-server/pkg/audio"
	"cliniguard-server/pkg/emotion"
	"cliniguard-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// Completer is the AI completion surface used for the pattern scan
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// EmotionDetector supplies an emotion vector when the caller did not
type EmotionDetector interface {
	DetectFromTranscript(ctx context.Context, text string) emotion.Scores
}

// Engine fuses keyword, emotion, audio and AI-pattern evidence into one
// calibrated risk assessment
type Engine struct {
	logger    *logrus.Logger
	config    Config
	completer Completer
	emotions  EmotionDetector
}

// NewEngine creates a new risk fusion engine. The completer may be nil, in
// which case the AI pattern scan is skipped; the emotion detector may be nil,
// in which case unsupplied emotions default to the neutral vector.
func NewEngine(logger *logrus.Logger, config Config, completer Completer, emotions EmotionDetector) *Engine {
	if len(config.CriticalKeywords) == 0 && len(config.HighKeywords) == 0 {
		config = DefaultConfig()
	}
	return &Engine{
		logger:    logger,
		config:    config,
		completer: completer,
		emotions:  emotions,
	}
}

// Assess runs the full fusion pipeline over one transcript. Emotion and
// audio inputs are optional; missing inputs narrow the evidence base but
// never fail the assessment.
func (e *Engine) Assess(ctx context.Context, transcript string, emotions *emotion.Scores, features *audio.Features) *Assessment {
	// Each detector returns its own slice; signals are concatenated once so
	// no detector can observe or reorder another's output
	signals := e.detectKeywords(transcript)

	scores := e.resolveEmotions(ctx, transcript, emotions)
	signals = append(signals, e.detectEmotionSignals(scores)...)

	if features != nil {
		signals = append(signals, e.detectAudioSignals(*features)...)
	}

	// A model call is only worth spending on text that is either already
	// suspicious or long enough to hide an indirect pattern
	if len(signals) > 0 || len(transcript) > e.config.PatternScanMinLength {
		signals = append(signals, e.detectPatterns(ctx, transcript)...)
	}

	assessment := e.fuse(signals)

	e.logger.WithFields(logrus.Fields{
		"risk_level":          assessment.RiskLevel,
		"risk_score":          assessment.RiskScore,
		"signals":             len(assessment.Signals),
		"immediate_attention": assessment.RequiresImmediateAttention,
	}).Info("Risk assessment completed")

	e.recordMetrics(assessment)

	return assessment
}

// resolveEmotions returns the supplied vector, or detects one, or falls back
// to neutral when no detector is wired
func (e *Engine) resolveEmotions(ctx context.Context, transcript string, supplied *emotion.Scores) emotion.Scores {
	if supplied != nil {
		return supplied.Clamp()
	}
	if e.emotions != nil {
		return e.emotions.DetectFromTranscript(ctx, transcript)
	}
	return emotion.Neutral()
}

// fuse aggregates a signal slice into a final assessment: weighted score,
// level cut points, then the downgrade-only suppression pass
func (e *Engine) fuse(signals []Signal) *Assessment {
	now := time.Now().UTC()

	if len(signals) == 0 {
		return &Assessment{
			RiskLevel:       LevelLow,
			RiskScore:       0,
			Signals:         []Signal{},
			Confidence:      1.0,
			Recommendations: e.recommendations(LevelLow),
			Timestamp:       now,
		}
	}

	score := e.scoreSignals(signals)
	level := e.levelForScore(score)
	level, score = e.suppress(level, score, signals)

	return &Assessment{
		RiskLevel:                  level,
		RiskScore:                  score,
		Signals:                    signals,
		Confidence:                 meanConfidence(signals),
		RequiresImmediateAttention: level == LevelCritical,
		Recommendations:            e.recommendations(level),
		Timestamp:                  now,
	}
}

// scoreSignals computes the confidence-weighted severity score in [0,100]
func (e *Engine) scoreSignals(signals []Signal) float64 {
	weightSum := 0.0
	weighted := 0.0

	for _, s := range signals {
		w := e.severityWeight(s.Severity)
		weightSum += w
		weighted += w * s.Confidence
	}

	if weightSum == 0 {
		return 0
	}
	return weighted / weightSum * 100
}

func (e *Engine) severityWeight(s Severity) float64 {
	switch s {
	case SeverityCritical:
		return e.config.CriticalWeight
	case SeverityHigh:
		return e.config.HighWeight
	case SeverityMedium:
		return e.config.MediumWeight
	default:
		return e.config.LowWeight
	}
}

func (e *Engine) levelForScore(score float64) Level {
	switch {
	case score >= e.config.CriticalCutoff:
		return LevelCritical
	case score >= e.config.HighCutoff:
		return LevelHigh
	case score >= e.config.MediumCutoff:
		return LevelMedium
	default:
		return LevelLow
	}
}

// suppress is the false-positive pass. It only ever lowers a level: a
// critical result needs either a critical keyword match or corroboration
// from a second signal; a high result needs at least two signals.
func (e *Engine) suppress(level Level, score float64, signals []Signal) (Level, float64) {
	if level == LevelCritical {
		if !hasCriticalKeyword(signals) && len(signals) < 2 {
			e.logger.WithField("score", score).Info("Suppressing critical level: single non-keyword signal")
			e.recordDowngrade(LevelCritical, LevelHigh)
			level = LevelHigh
			if score > e.config.CriticalDowngradeCap {
				score = e.config.CriticalDowngradeCap
			}
		}
	}

	if level == LevelHigh {
		if len(signals) < 2 {
			e.recordDowngrade(LevelHigh, LevelMedium)
			level = LevelMedium
			if score > e.config.HighDowngradeCap {
				score = e.config.HighDowngradeCap
			}
		}
	}

	return level, score
}

func hasCriticalKeyword(signals []Signal) bool {
	for _, s := range signals {
		if s.Type == SignalKeyword && s.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

func meanConfidence(signals []Signal) float64 {
	if len(signals) == 0 {
		return 1.0
	}
	sum := 0.0
	for _, s := range signals {
		sum += s.Confidence
	}
	return sum / float64(len(signals))
}

// recommendations returns the fixed escalation guidance for a level. The
// table is static rather than AI-generated so escalation guidance stays
// auditable and independent of model variability.
func (e *Engine) recommendations(level Level) []string {
	switch level {
	case LevelCritical:
		return []string{
			"Contact the client immediately and assess acute safety",
			"Follow the practice's crisis intervention protocol",
			"Document the assessment and all actions taken",
			"Consider involving emergency services if the client is unreachable",
		}
	case LevelHigh:
		return []string{
			"Schedule a follow-up contact within 24 hours",
			"Review the safety plan with the client at the next session",
			"Document the indicators and inform the supervising clinician",
		}
	case LevelMedium:
		return []string{
			"Monitor mood indicators across the next sessions",
			"Revisit coping strategies with the client",
		}
	default:
		return []string{
			"No elevated risk indicators; continue routine care",
		}
	}
}

func (e *Engine) recordMetrics(a *Assessment) {
	if !metrics.Enabled() || metrics.RiskAssessmentsTotal == nil {
		return
	}
	metrics.RiskAssessmentsTotal.WithLabelValues(string(a.RiskLevel)).Inc()
	for _, s := range a.Signals {
		metrics.RiskSignalsDetected.WithLabelValues(string(s.Type), string(s.Severity)).Inc()
	}
}

func (e *Engine) recordDowngrade(from, to Level) {
	if metrics.Enabled() && metrics.RiskSuppressionDowngrades != nil {
		metrics.RiskSuppressionDowngrades.WithLabelValues(string(from), string(to)).Inc()
	}
}
