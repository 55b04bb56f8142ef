package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cliniguard-server/pkg/audio"
	"cliniguard-server/pkg/errors"
	"cliniguard-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// Completer is the AI completion surface the engine depends on. It receives
// de-identified text only.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds the engine's merge weights and fixed per-mode confidences.
// The confidences are deliberate constants, not computed from signal
// agreement; callers must not over-interpret them as statistically derived.
type Config struct {
	TranscriptWeight     float64
	AudioWeight          float64
	HybridConfidence     float64
	TranscriptConfidence float64

	Thresholds audio.IndicatorThresholds
}

// DefaultConfig returns the built-in engine configuration
func DefaultConfig() Config {
	return Config{
		TranscriptWeight:     0.7,
		AudioWeight:          0.3,
		HybridConfidence:     0.85,
		TranscriptConfidence: 0.75,
		Thresholds:           audio.DefaultIndicatorThresholds(),
	}
}

// Mood formula constants: mood = 2*(0.6*normPitch + 0.4*normTempo) - 1
const (
	moodPitchWeight = 0.6
	moodTempoWeight = 0.4

	// Normalization bounds for the mood formula
	moodPitchFloorHz   = 85.0
	moodPitchCeilingHz = 255.0
	moodTempoCeiling   = 200.0
)

// DetectionResult pairs an emotion vector with the detection mode and its
// fixed confidence
type DetectionResult struct {
	Scores     Scores  `json:"scores"`
	Confidence float64 `json:"confidence"`
	Mode       string  `json:"mode"`
}

// Engine infers emotional state from transcripts, audio features or both
type Engine struct {
	logger    *logrus.Logger
	completer Completer
	config    Config
}

// NewEngine creates a new emotion engine
func NewEngine(logger *logrus.Logger, completer Completer, config Config) *Engine {
	if config.TranscriptWeight == 0 && config.AudioWeight == 0 {
		config = DefaultConfig()
	}
	return &Engine{
		logger:    logger,
		completer: completer,
		config:    config,
	}
}

const transcriptPrompt = `Analyze the emotional state expressed in the following therapy session transcript.
Respond with nothing but a JSON object with these exact keys, each a number:
"sadness", "anxiety", "anger", "happiness", "fear", "hope" (each 0.0 to 1.0)
and "overallMood" (-1.0 to 1.0).

Transcript:
%s`

// DetectFromTranscript asks the AI service for an emotion vector. Any
// failure, transport or parse, yields the neutral vector rather than an
// error; emotion detection fails closed to neutral.
func (e *Engine) DetectFromTranscript(ctx context.Context, text string) Scores {
	if e.completer == nil {
		return Neutral()
	}

	raw, err := e.completer.Complete(ctx, fmt.Sprintf(transcriptPrompt, text))
	if err != nil {
		e.logger.WithError(err).Warn("Emotion detection AI call failed, falling back to neutral")
		e.recordNeutralFallback()
		return Neutral()
	}

	scores, err := ParseScores(raw)
	if err != nil {
		e.logger.WithError(err).Warn("Unparseable emotion response, falling back to neutral")
		e.recordNeutralFallback()
		return Neutral()
	}

	if metrics.Enabled() && metrics.EmotionDetections != nil {
		metrics.EmotionDetections.WithLabelValues("transcript").Inc()
	}

	return scores
}

// DetectFromAudio derives an emotion vector from paralinguistic features
// alone. Pure function of the features; no AI call involved.
func (e *Engine) DetectFromAudio(f audio.Features) Scores {
	indicators := audio.EmotionIndicators(f, e.config.Thresholds)

	scores := Scores{
		Sadness:   indicators["sadness"],
		Anxiety:   indicators["anxiety"],
		Anger:     indicators["anger"],
		Happiness: indicators["happiness"],
		Fear:      indicators["fear"],
		Hope:      0.5,
	}

	normPitch := (f.Pitch - moodPitchFloorHz) / (moodPitchCeilingHz - moodPitchFloorHz)
	normTempo := f.Tempo / moodTempoCeiling
	scores.OverallMood = 2*(moodPitchWeight*clampUnit(normPitch)+moodTempoWeight*clampUnit(normTempo)) - 1

	return scores.Clamp()
}

// DetectHybrid fuses transcript and audio detection with fixed weights when
// audio features are present, and reports the fixed per-mode confidence
func (e *Engine) DetectHybrid(ctx context.Context, text string, f *audio.Features) DetectionResult {
	transcriptScores := e.DetectFromTranscript(ctx, text)

	if f == nil {
		return DetectionResult{
			Scores:     transcriptScores,
			Confidence: e.config.TranscriptConfidence,
			Mode:       "transcript",
		}
	}

	audioScores := e.DetectFromAudio(*f)
	merged := transcriptScores.Merge(audioScores, e.config.TranscriptWeight)

	if metrics.Enabled() && metrics.EmotionDetections != nil {
		metrics.EmotionDetections.WithLabelValues("hybrid").Inc()
	}

	return DetectionResult{
		Scores:     merged,
		Confidence: e.config.HybridConfidence,
		Mode:       "hybrid",
	}
}

// ParseScores performs the strict parse-and-validate step over a raw model
// response. It accepts a bare JSON object or one embedded in surrounding
// prose, requires every dimension to be present and numeric, and clamps the
// result. Callers get either a valid vector or an error, never a partial one.
func ParseScores(raw string) (Scores, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return Scores{}, errors.Wrap(errors.ErrUnparseableResponse, "no JSON object in response")
	}

	var fields map[string]*float64
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return Scores{}, errors.Wrap(err, "emotion response is not a JSON object")
	}

	required := []string{"sadness", "anxiety", "anger", "happiness", "fear", "hope", "overallMood"}
	for _, key := range required {
		if v, ok := fields[key]; !ok || v == nil {
			return Scores{}, errors.Wrap(errors.ErrUnparseableResponse, "missing emotion dimension").
				WithField("dimension", key)
		}
	}

	scores := Scores{
		Sadness:     *fields["sadness"],
		Anxiety:     *fields["anxiety"],
		Anger:       *fields["anger"],
		Happiness:   *fields["happiness"],
		Fear:        *fields["fear"],
		Hope:        *fields["hope"],
		OverallMood: *fields["overallMood"],
	}

	return scores.Clamp(), nil
}

// extractJSONObject returns the outermost {...} span of raw, or "" when none
// exists. Models occasionally wrap the requested JSON in prose.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func (e *Engine) recordNeutralFallback() {
	if metrics.Enabled() && metrics.EmotionNeutralFallback != nil {
		metrics.EmotionNeutralFallback.Inc()
	}
}
