package risk

import (
	"context"
	"strings"
	"testing"

	"cliniguard-server/pkg/ai"
	"cliniguard-server/pkg/audio"
	"cliniguard-server/pkg/emotion"
	"cliniguard-server/pkg/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestEngine(completer Completer) *Engine {
	return NewEngine(newTestLogger(), DefaultConfig(), completer, nil)
}

func TestAssessCriticalKeywordAloneIsSufficient(t *testing.T) {
	engine := newTestEngine(nil)

	assessment := engine.Assess(context.Background(), "I want to kill myself", nil, nil)

	require.Len(t, assessment.Signals, 1)
	assert.Equal(t, SignalKeyword, assessment.Signals[0].Type)
	assert.Equal(t, SeverityCritical, assessment.Signals[0].Severity)
	assert.Equal(t, LevelCritical, assessment.RiskLevel)
	assert.True(t, assessment.RequiresImmediateAttention,
		"A critical keyword must escalate even with no corroborating signal")
	assert.InDelta(t, 90.0, assessment.RiskScore, 1e-9, "Single 0.9-confidence critical signal scores 90")
}

func TestAssessNoSignals(t *testing.T) {
	engine := newTestEngine(nil)

	assessment := engine.Assess(context.Background(), "Had a calm and ordinary week", nil, nil)

	assert.Empty(t, assessment.Signals)
	assert.Equal(t, LevelLow, assessment.RiskLevel)
	assert.Equal(t, 0.0, assessment.RiskScore)
	assert.Equal(t, 1.0, assessment.Confidence)
	assert.False(t, assessment.RequiresImmediateAttention)
	assert.NotEmpty(t, assessment.Recommendations)
}

func TestAssessSingleEmotionSignalIsDowngraded(t *testing.T) {
	engine := newTestEngine(nil)

	scores := emotion.Neutral()
	scores.OverallMood = -0.9

	assessment := engine.Assess(context.Background(), "no keywords in here", &scores, nil)

	require.Len(t, assessment.Signals, 1)
	assert.Equal(t, SignalEmotion, assessment.Signals[0].Type)
	assert.Equal(t, LevelMedium, assessment.RiskLevel,
		"A single non-keyword signal must not reach the high level")
	assert.LessOrEqual(t, assessment.RiskScore, 59.0)
	assert.False(t, assessment.RequiresImmediateAttention)
}

func TestAssessKeywordPlusEmotionStaysCritical(t *testing.T) {
	engine := newTestEngine(nil)

	scores := emotion.Neutral()
	scores.Sadness = 0.9
	scores.Hope = 0.1

	assessment := engine.Assess(context.Background(), "I just want to end my life", &scores, nil)

	require.Len(t, assessment.Signals, 2)
	assert.Equal(t, LevelCritical, assessment.RiskLevel)
	assert.True(t, assessment.RequiresImmediateAttention)
	// (100*0.9 + 70*0.75) / 170 * 100
	assert.InDelta(t, (100*0.9+70*0.75)/170*100, assessment.RiskScore, 1e-9)
	assert.InDelta(t, (0.9+0.75)/2, assessment.Confidence, 1e-9)
}

func TestAssessAudioSignals(t *testing.T) {
	engine := newTestEngine(nil)

	features := &audio.Features{Pitch: 90, Tempo: 70}

	assessment := engine.Assess(context.Background(), "nothing alarming said", nil, features)

	require.Len(t, assessment.Signals, 1)
	assert.Equal(t, SignalAudio, assessment.Signals[0].Type)
	assert.Equal(t, "audio-threshold", assessment.Signals[0].Source)
	assert.Equal(t, LevelMedium, assessment.RiskLevel)
}

func TestSuppressionNeverUpgrades(t *testing.T) {
	engine := newTestEngine(nil)

	testCases := []struct {
		name    string
		level   Level
		score   float64
		signals []Signal
	}{
		{
			name:  "critical with keyword kept",
			level: LevelCritical,
			score: 90,
			signals: []Signal{
				{Type: SignalKeyword, Severity: SeverityCritical, Confidence: 0.9},
			},
		},
		{
			name:  "critical with corroboration kept",
			level: LevelCritical,
			score: 85,
			signals: []Signal{
				{Type: SignalPattern, Severity: SeverityCritical, Confidence: 0.9},
				{Type: SignalEmotion, Severity: SeverityHigh, Confidence: 0.75},
			},
		},
		{
			name:  "high with two signals kept",
			level: LevelHigh,
			score: 70,
			signals: []Signal{
				{Type: SignalEmotion, Severity: SeverityHigh, Confidence: 0.75},
				{Type: SignalAudio, Severity: SeverityMedium, Confidence: 0.65},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			level, score := engine.suppress(tc.level, tc.score, tc.signals)
			assert.Equal(t, tc.level, level, "Suppression must never change a corroborated level")
			assert.Equal(t, tc.score, score)
		})
	}
}

func TestSuppressionCascadesSingleCriticalPattern(t *testing.T) {
	engine := newTestEngine(nil)

	signals := []Signal{
		{Type: SignalPattern, Severity: SeverityCritical, Confidence: 1.0},
	}

	level, score := engine.suppress(LevelCritical, 100, signals)

	assert.Equal(t, LevelMedium, level,
		"A lone non-keyword critical signal falls through both suppression gates")
	assert.Equal(t, 59.0, score)
}

func TestLevelForScoreCutPoints(t *testing.T) {
	engine := newTestEngine(nil)

	testCases := []struct {
		score    float64
		expected Level
	}{
		{100, LevelCritical},
		{80, LevelCritical},
		{79.9, LevelHigh},
		{60, LevelHigh},
		{59.9, LevelMedium},
		{30, LevelMedium},
		{29.9, LevelLow},
		{0, LevelLow},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, engine.levelForScore(tc.score), "score %v", tc.score)
	}
}

func TestDetectKeywordsTiers(t *testing.T) {
	engine := newTestEngine(nil)

	signals := engine.detectKeywords("Some days I feel HOPELESS and think I should just give up")

	require.Len(t, signals, 2)
	assert.Equal(t, SeverityHigh, signals[0].Severity, "Matching is case-insensitive")
	assert.Equal(t, 0.75, signals[0].Confidence)
	assert.Equal(t, SeverityMedium, signals[1].Severity)
	assert.Equal(t, 0.6, signals[1].Confidence)
}

func TestDetectEmotionSignalsRules(t *testing.T) {
	engine := newTestEngine(nil)

	scores := emotion.Scores{
		Sadness:     0.9,
		Hope:        0.1,
		Fear:        0.9,
		Anxiety:     0.9,
		OverallMood: -0.8,
	}

	signals := engine.detectEmotionSignals(scores)

	require.Len(t, signals, 3, "Despair, panic and low mood rules should all fire")
	assert.Equal(t, SeverityHigh, signals[0].Severity)
	assert.Equal(t, SeverityMedium, signals[1].Severity)
	assert.Equal(t, SeverityHigh, signals[2].Severity)
}

func TestDetectEmotionSignalsNeutralIsQuiet(t *testing.T) {
	engine := newTestEngine(nil)
	assert.Empty(t, engine.detectEmotionSignals(emotion.Neutral()),
		"The neutral vector must never produce a risk signal")
}

func TestDetectPatternsParsesResponse(t *testing.T) {
	logger := newTestLogger()
	completer := ai.NewMockProvider(logger,
		`[{"severity":"high","description":"talks about giving away belongings","confidence":0.8}]`)
	engine := NewEngine(logger, DefaultConfig(), completer, nil)

	signals := engine.detectPatterns(context.Background(), "a long transcript")

	require.Len(t, signals, 1)
	assert.Equal(t, SignalPattern, signals[0].Type)
	assert.Equal(t, SeverityHigh, signals[0].Severity)
	assert.Equal(t, 0.8, signals[0].Confidence)
}

func TestDetectPatternsToleratesFailure(t *testing.T) {
	logger := newTestLogger()

	testCases := []struct {
		name      string
		completer Completer
	}{
		{"nil completer", nil},
		{"transport failure", ai.NewMockProvider(logger).FailWith(errors.ErrProviderFailure)},
		{"prose response", ai.NewMockProvider(logger, "I did not find anything concerning.")},
		{"malformed json", ai.NewMockProvider(logger, `[{"severity":`)},
		{"empty array", ai.NewMockProvider(logger, `[]`)},
		{"unknown severity", ai.NewMockProvider(logger, `[{"severity":"catastrophic","description":"x","confidence":0.9}]`)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			engine := NewEngine(logger, DefaultConfig(), tc.completer, nil)
			assert.Empty(t, engine.detectPatterns(context.Background(), "transcript"),
				"Pattern scan failures must contribute zero signals")
		})
	}
}

func TestPatternScanGating(t *testing.T) {
	logger := newTestLogger()

	t.Run("short clean transcript skips the scan", func(t *testing.T) {
		completer := ai.NewMockProvider(logger, `[]`)
		engine := NewEngine(logger, DefaultConfig(), completer, nil)

		engine.Assess(context.Background(), "short and unremarkable", nil, nil)

		assert.Empty(t, completer.Prompts(), "No AI call for short text without signals")
	})

	t.Run("long transcript triggers the scan", func(t *testing.T) {
		completer := ai.NewMockProvider(logger, `[]`)
		engine := NewEngine(logger, DefaultConfig(), completer, nil)

		long := strings.Repeat("the session covered routine topics. ", 10)
		engine.Assess(context.Background(), long, nil, nil)

		assert.Len(t, completer.Prompts(), 1)
	})

	t.Run("existing signal triggers the scan", func(t *testing.T) {
		completer := ai.NewMockProvider(logger, `[]`)
		engine := NewEngine(logger, DefaultConfig(), completer, nil)

		engine.Assess(context.Background(), "I feel hopeless", nil, nil)

		assert.Len(t, completer.Prompts(), 1)
	})
}

func TestRecommendationsPerLevel(t *testing.T) {
	engine := newTestEngine(nil)

	for _, level := range []Level{LevelLow, LevelMedium, LevelHigh, LevelCritical} {
		assert.NotEmpty(t, engine.recommendations(level), "level %s must carry guidance", level)
	}
	assert.Greater(t,
		len(engine.recommendations(LevelCritical)),
		len(engine.recommendations(LevelLow)),
		"Escalation guidance grows with the level")
}

func TestAddingCriticalKeywordSignalNeverLowersScore(t *testing.T) {
	engine := newTestEngine(nil)

	// The weighted mean Σ(w×c)/Σ(w) can only drop when the appended signal's
	// confidence sits below the prevailing mean, so the guarantee is stated
	// for the critical keyword confidence (0.9), the ceiling of every
	// built-in confidence.
	criticalKeyword := Signal{
		Type:        SignalKeyword,
		Severity:    SeverityCritical,
		Description: `transcript contains "suicide"`,
		Confidence:  engine.config.CriticalKeywordConfidence,
		Source:      "keyword-scan",
	}

	testCases := []struct {
		name string
		base []Signal
	}{
		{"no prior signals", nil},
		{"single low-confidence medium", []Signal{
			{Type: SignalEmotion, Severity: SeverityMedium, Confidence: 0.6},
		}},
		{"mixed severities", []Signal{
			{Type: SignalEmotion, Severity: SeverityHigh, Confidence: 0.8},
			{Type: SignalAudio, Severity: SeverityMedium, Confidence: 0.65},
			{Type: SignalPattern, Severity: SeverityLow, Confidence: 0.3},
		}},
		{"already critical", []Signal{
			{Type: SignalKeyword, Severity: SeverityCritical, Confidence: 0.9},
			{Type: SignalEmotion, Severity: SeverityHigh, Confidence: 0.75},
		}},
	}

	levelRank := map[Level]int{LevelLow: 0, LevelMedium: 1, LevelHigh: 2, LevelCritical: 3}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			before := engine.fuse(tc.base)
			after := engine.fuse(append(append([]Signal{}, tc.base...), criticalKeyword))

			assert.GreaterOrEqual(t, after.RiskScore, before.RiskScore,
				"Appending a 0.9-confidence critical signal must not lower the score")
			assert.GreaterOrEqual(t, levelRank[after.RiskLevel], levelRank[before.RiskLevel],
				"Appending a critical keyword signal must not lower the level")
		})
	}
}
