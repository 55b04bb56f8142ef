package orchestrator

import (
	"strings"
)

// PatientContext carries the historical case data available for a client.
// All fields are optional; a nil context switches complexity scoring to the
// transcript-only estimate.
type PatientContext struct {
	// SessionCount is the number of prior recorded sessions
	SessionCount int `json:"sessionCount"`

	// RawData is the accumulated prior documentation for the case
	RawData string `json:"rawData"`

	// RiskFactorCount is the number of known standing risk factors
	RiskFactorCount int `json:"riskFactorCount"`
}

// ScoreComplexity estimates how much context a case needs to process well,
// as a scalar in [0,1]. The score is computed fresh per request and never
// cached: case state can change session to session.
func (o *Orchestrator) ScoreComplexity(pc *PatientContext, transcript string) float64 {
	cfg := o.config

	if pc != nil {
		sessionTerm := capped(float64(pc.SessionCount) / cfg.SessionCap)
		dataTerm := capped(float64(len(pc.RawData)) / cfg.DataCap)
		riskTerm := capped(float64(pc.RiskFactorCount) / cfg.RiskFactorCap)

		return cfg.SessionWeight*sessionTerm + cfg.DataWeight*dataTerm + cfg.RiskFactorWeight*riskTerm
	}

	// No history available: estimate from the transcript alone
	lengthTerm := capped(float64(len(transcript)) / cfg.LengthDivisor)
	wordTerm := capped(float64(len(strings.Fields(transcript))) / cfg.WordDivisor)
	keywordTerm := capped(float64(o.countRiskKeywords(transcript)) / cfg.KeywordDivisor)

	return cfg.LengthWeight*lengthTerm + cfg.WordWeight*wordTerm + cfg.KeywordWeight*keywordTerm
}

// countRiskKeywords counts how many configured risk keywords occur in the
// transcript
func (o *Orchestrator) countRiskKeywords(transcript string) int {
	lowered := strings.ToLower(transcript)
	count := 0
	for _, keyword := range o.config.RiskKeywords {
		if strings.Contains(lowered, keyword) {
			count++
		}
	}
	return count
}

// capped bounds a ratio term at 1 before weighting
func capped(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
