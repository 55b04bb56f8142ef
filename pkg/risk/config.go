package risk

// Config holds every tunable of the risk fusion engine: keyword lists, rule
// thresholds, severity weights, cut points and suppression caps. None of the
// built-in numbers carry a documented empirical basis; they are named here so
// tuning never requires touching detector or scoring control flow.
type Config struct {
	// Severity-tiered keyword lists, matched as lowercased substrings
	CriticalKeywords []string
	HighKeywords     []string
	MediumKeywords   []string

	// Fixed per-tier keyword signal confidences
	CriticalKeywordConfidence float64
	HighKeywordConfidence     float64
	MediumKeywordConfidence   float64

	// Emotion-threshold rules
	DespairSadnessMin float64 // sadness above this and hope below DespairHopeMax
	DespairHopeMax    float64
	DespairConfidence float64
	PanicFearMin      float64 // fear and anxiety both above their minimums
	PanicAnxietyMin   float64
	PanicConfidence   float64
	LowMoodMax        float64 // overallMood below this
	LowMoodConfidence float64

	// Audio-threshold rules
	FlatAffectPitchMaxHz   float64 // pitch below this and tempo below FlatAffectTempoMax
	FlatAffectTempoMax     float64
	FlatAffectConfidence   float64
	InstabilityPitchVarMin float64 // pitch variation above this and pause frequency above InstabilityPauseMin
	InstabilityPauseMin    float64
	InstabilityConfidence  float64

	// Severity weights used in score aggregation
	CriticalWeight float64
	HighWeight     float64
	MediumWeight   float64
	LowWeight      float64

	// Score cut points mapping numeric score to level
	CriticalCutoff float64
	HighCutoff     float64
	MediumCutoff   float64

	// Suppression caps applied when a level is downgraded
	CriticalDowngradeCap float64
	HighDowngradeCap     float64

	// PatternScanMinLength gates the AI pattern scan for short, signal-free text
	PatternScanMinLength int
}

// DefaultKeywordTiers returns the built-in severity-tiered keyword lists,
// matched as lowercased substrings. This is the single source of the default
// lists; configuration loading and the complexity estimator derive theirs
// from here.
func DefaultKeywordTiers() (critical, high, medium []string) {
	critical = []string{
		"kill myself", "end my life", "suicide", "want to die",
		"better off dead", "overdose", "no reason to live",
	}
	high = []string{
		"hurt myself", "self-harm", "self harm", "hopeless",
		"can't go on", "no way out", "worthless", "cutting",
	}
	medium = []string{
		"give up", "can't cope", "unbearable", "trapped",
		"burden to everyone", "empty inside",
	}
	return critical, high, medium
}

// DefaultConfig returns the built-in risk engine configuration
func DefaultConfig() Config {
	critical, high, medium := DefaultKeywordTiers()

	return Config{
		CriticalKeywords: critical,
		HighKeywords:     high,
		MediumKeywords:   medium,

		CriticalKeywordConfidence: 0.9,
		HighKeywordConfidence:     0.75,
		MediumKeywordConfidence:   0.6,

		DespairSadnessMin: 0.8,
		DespairHopeMax:    0.2,
		DespairConfidence: 0.8,
		PanicFearMin:      0.8,
		PanicAnxietyMin:   0.8,
		PanicConfidence:   0.7,
		LowMoodMax:        -0.7,
		LowMoodConfidence: 0.75,

		FlatAffectPitchMaxHz:   100,
		FlatAffectTempoMax:     80,
		FlatAffectConfidence:   0.65,
		InstabilityPitchVarMin: 35,
		InstabilityPauseMin:    12,
		InstabilityConfidence:  0.6,

		CriticalWeight: 100,
		HighWeight:     70,
		MediumWeight:   40,
		LowWeight:      10,

		CriticalCutoff: 80,
		HighCutoff:     60,
		MediumCutoff:   30,

		CriticalDowngradeCap: 79,
		HighDowngradeCap:     59,

		PatternScanMinLength: 100,
	}
}
