package risk

import "time"

// SignalType identifies which detector produced a signal
type SignalType string

const (
	SignalKeyword SignalType = "keyword"
	SignalEmotion SignalType = "emotion"
	SignalAudio   SignalType = "audio"
	SignalPattern SignalType = "pattern"
)

// Severity grades a single signal
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Level is the calibrated overall risk level of an assessment
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Signal is one piece of evidence contributing to an assessment. Signals are
// accumulated, never mutated; the collected slice is the sole input to
// scoring.
type Signal struct {
	Type        SignalType `json:"type"`
	Severity    Severity   `json:"severity"`
	Description string     `json:"description"`
	Confidence  float64    `json:"confidence"`
	Source      string     `json:"source"`
}

// Assessment is the final fused risk result. It is immutable after creation;
// persisting and acting on it is the caller's responsibility.
type Assessment struct {
	RiskLevel                  Level     `json:"riskLevel"`
	RiskScore                  float64   `json:"riskScore"`
	Signals                    []Signal  `json:"signals"`
	Confidence                 float64   `json:"confidence"`
	RequiresImmediateAttention bool      `json:"requiresImmediateAttention"`
	Recommendations            []string  `json:"recommendations"`
	Timestamp                  time.Time `json:"timestamp"`
}
