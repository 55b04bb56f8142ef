package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cliniguard-server/pkg/audio"
	"cliniguard-server/pkg/emotion"
)

// detectKeywords scans the transcript against the severity-tiered keyword
// lists. Keyword signals are computed locally and are unaffected by AI
// availability, which is the primary defense against an outage hiding a
// genuine risk indicator.
func (e *Engine) detectKeywords(transcript string) []Signal {
	lowered := strings.ToLower(transcript)

	var signals []Signal

	tiers := []struct {
		keywords   []string
		severity   Severity
		confidence float64
	}{
		{e.config.CriticalKeywords, SeverityCritical, e.config.CriticalKeywordConfidence},
		{e.config.HighKeywords, SeverityHigh, e.config.HighKeywordConfidence},
		{e.config.MediumKeywords, SeverityMedium, e.config.MediumKeywordConfidence},
	}

	for _, tier := range tiers {
		for _, keyword := range tier.keywords {
			if strings.Contains(lowered, keyword) {
				signals = append(signals, Signal{
					Type:        SignalKeyword,
					Severity:    tier.severity,
					Description: fmt.Sprintf("transcript contains %q", keyword),
					Confidence:  tier.confidence,
					Source:      "keyword-scan",
				})
			}
		}
	}

	return signals
}

// detectEmotionSignals applies the fixed emotion-threshold rules
func (e *Engine) detectEmotionSignals(scores emotion.Scores) []Signal {
	var signals []Signal

	if scores.Sadness > e.config.DespairSadnessMin && scores.Hope < e.config.DespairHopeMax {
		signals = append(signals, Signal{
			Type:        SignalEmotion,
			Severity:    SeverityHigh,
			Description: "elevated sadness combined with depleted hope",
			Confidence:  e.config.DespairConfidence,
			Source:      "emotion-threshold",
		})
	}

	if scores.Fear > e.config.PanicFearMin && scores.Anxiety > e.config.PanicAnxietyMin {
		signals = append(signals, Signal{
			Type:        SignalEmotion,
			Severity:    SeverityMedium,
			Description: "elevated fear combined with elevated anxiety",
			Confidence:  e.config.PanicConfidence,
			Source:      "emotion-threshold",
		})
	}

	if scores.OverallMood < e.config.LowMoodMax {
		signals = append(signals, Signal{
			Type:        SignalEmotion,
			Severity:    SeverityHigh,
			Description: "severely depressed overall mood",
			Confidence:  e.config.LowMoodConfidence,
			Source:      "emotion-threshold",
		})
	}

	return signals
}

// detectAudioSignals applies the fixed audio-threshold rules. Only invoked
// when paralinguistic features were supplied.
func (e *Engine) detectAudioSignals(f audio.Features) []Signal {
	var signals []Signal

	if f.Pitch < e.config.FlatAffectPitchMaxHz && f.Tempo < e.config.FlatAffectTempoMax {
		signals = append(signals, Signal{
			Type:        SignalAudio,
			Severity:    SeverityMedium,
			Description: "flat affect: unusually low pitch and slow speech",
			Confidence:  e.config.FlatAffectConfidence,
			Source:      "audio-threshold",
		})
	}

	if f.PitchVariation > e.config.InstabilityPitchVarMin && f.PauseFrequency > e.config.InstabilityPauseMin {
		signals = append(signals, Signal{
			Type:        SignalAudio,
			Severity:    SeverityMedium,
			Description: "vocal instability: high pitch variation with frequent pausing",
			Confidence:  e.config.InstabilityConfidence,
			Source:      "audio-threshold",
		})
	}

	return signals
}

const patternPrompt = `You are reviewing a de-identified therapy session transcript for safety-relevant
patterns that simple keyword matching would miss (indirect ideation, giving away
possessions, saying goodbye, sudden calm after despair). Be conservative: only
report a pattern you are confident about. Respond with nothing but a JSON array,
possibly empty, of objects with keys "severity" (one of "low", "medium", "high",
"critical"), "description" (string) and "confidence" (0.0 to 1.0).

Transcript:
%s`

// patternItem is the wire shape of one AI-reported pattern
type patternItem struct {
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// detectPatterns asks the AI service for additional pattern signals. An
// unreachable service or an unparseable response contributes zero signals;
// it is an ordinary, expected outcome, not an error.
func (e *Engine) detectPatterns(ctx context.Context, transcript string) []Signal {
	if e.completer == nil {
		return nil
	}

	raw, err := e.completer.Complete(ctx, fmt.Sprintf(patternPrompt, transcript))
	if err != nil {
		e.logger.WithError(err).Warn("Pattern scan AI call failed, continuing without pattern signals")
		return nil
	}

	payload := extractJSONArray(raw)
	if payload == "" {
		e.logger.Warn("Pattern scan response contained no JSON array")
		return nil
	}

	var items []patternItem
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		e.logger.WithError(err).Warn("Unparseable pattern scan response")
		return nil
	}

	var signals []Signal
	for _, item := range items {
		severity, ok := parseSeverity(item.Severity)
		if !ok || item.Description == "" {
			continue
		}

		confidence := item.Confidence
		if confidence < 0 || confidence > 1 {
			continue
		}

		signals = append(signals, Signal{
			Type:        SignalPattern,
			Severity:    severity,
			Description: item.Description,
			Confidence:  confidence,
			Source:      "ai-pattern-scan",
		})
	}

	return signals
}

func parseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	case SeverityCritical:
		return SeverityCritical, true
	}
	return "", false
}

// extractJSONArray returns the outermost [...] span of raw, or "" when none
// exists
func extractJSONArray(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
