package audio

// IndicatorThresholds holds the tunable cut points for the rule-based
// mapping from paralinguistic features to coarse emotion indicators.
// This is deliberately a fixed-rule table rather than a trained classifier;
// keeping every threshold named here lets the rules be retuned without
// touching control flow.
type IndicatorThresholds struct {
	SadnessMaxPitch     float64
	SadnessMaxTempo     float64
	SadnessMinPauseFreq float64
	SadnessScore        float64

	AnxietyMinPitch float64
	AnxietyMinTempo float64
	AnxietyScore    float64

	AngerMinVolume float64
	AngerMinEnergy float64
	AngerScore     float64

	HappinessMinPitch float64
	HappinessMinTempo float64
	HappinessMaxPause float64
	HappinessScore    float64

	FearMinPitchVar  float64
	FearMinPauseFreq float64
	FearScore        float64
}

// DefaultIndicatorThresholds returns the built-in indicator rule table
func DefaultIndicatorThresholds() IndicatorThresholds {
	return IndicatorThresholds{
		SadnessMaxPitch:     120,
		SadnessMaxTempo:     100,
		SadnessMinPauseFreq: 10,
		SadnessScore:        0.7,

		AnxietyMinPitch: 180,
		AnxietyMinTempo: 150,
		AnxietyScore:    0.65,

		AngerMinVolume: 0.75,
		AngerMinEnergy: 0.7,
		AngerScore:     0.6,

		HappinessMinPitch: 160,
		HappinessMinTempo: 120,
		HappinessMaxPause: 6,
		HappinessScore:    0.6,

		FearMinPitchVar:  35,
		FearMinPauseFreq: 12,
		FearScore:        0.6,
	}
}

// EmotionIndicators applies the threshold rules to a feature set and returns
// a coarse five-dimension emotion estimate. Dimensions without a firing rule
// are reported at a neutral 0.5.
func EmotionIndicators(f Features, t IndicatorThresholds) map[string]float64 {
	indicators := map[string]float64{
		"sadness":   0.5,
		"anxiety":   0.5,
		"anger":     0.5,
		"happiness": 0.5,
		"fear":      0.5,
	}

	// Low pitch, slow speech and frequent pausing together indicate a
	// depressed affect
	if f.Pitch < t.SadnessMaxPitch && f.Tempo < t.SadnessMaxTempo && f.PauseFrequency > t.SadnessMinPauseFreq {
		indicators["sadness"] = t.SadnessScore
	}

	if f.Pitch > t.AnxietyMinPitch && f.Tempo > t.AnxietyMinTempo {
		indicators["anxiety"] = t.AnxietyScore
	}

	if f.Volume > t.AngerMinVolume && f.Energy > t.AngerMinEnergy {
		indicators["anger"] = t.AngerScore
	}

	if f.Pitch > t.HappinessMinPitch && f.Tempo > t.HappinessMinTempo && f.PauseFrequency < t.HappinessMaxPause {
		indicators["happiness"] = t.HappinessScore
	}

	if f.PitchVariation > t.FearMinPitchVar && f.PauseFrequency > t.FearMinPauseFreq {
		indicators["fear"] = t.FearScore
	}

	return indicators
}
