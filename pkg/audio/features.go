package audio

import (
	"strings"
)

// Features holds paralinguistic measurements for one analysis window.
// Values are either derived from a live frequency-domain stream or estimated
// from a transcript plus its elapsed duration. Features are ephemeral and are
// not persisted beyond the session that computed them.
type Features struct {
	Pitch            float64 `json:"pitch"`             // dominant pitch, Hz
	Tempo            float64 `json:"tempo"`             // words per minute
	PauseFrequency   float64 `json:"pauseFrequency"`    // pauses per minute
	AvgPauseDuration float64 `json:"avgPauseDuration"`  // mean pause duration, ms
	SpeechRate       float64 `json:"speechRate"`        // syllables per second
	PitchVariation   float64 `json:"pitchVariation"`    // stddev of pitch, Hz
	Volume           float64 `json:"volume"`            // normalized [0,1]
	Energy           float64 `json:"energy"`            // normalized [0,1]
}

const (
	// defaultPitchHz is used on the estimate path, where no pitch data exists
	defaultPitchHz = 150.0

	// estimatedPauseShare is the fraction of total duration assumed to be
	// pause time when pauses are inferred from punctuation alone
	estimatedPauseShare = 0.2
)

// EstimateFromTranscript derives Features from a transcript and the elapsed
// duration of the recording, for sessions without raw audio
func EstimateFromTranscript(text string, durationMs float64) Features {
	f := Features{
		Pitch:  defaultPitchHz,
		Volume: 0.5,
		Energy: 0.5,
	}

	if durationMs <= 0 || strings.TrimSpace(text) == "" {
		return f
	}

	words := strings.Fields(text)
	f.Tempo = float64(len(words)) / durationMs * 60000

	syllables := 0
	for _, word := range words {
		syllables += countSyllables(word)
	}
	f.SpeechRate = float64(syllables) / durationMs * 1000

	pauses := countPauses(text)
	if pauses > 0 {
		f.PauseFrequency = float64(pauses) / durationMs * 60000
		// Distribute the assumed total pause time evenly across pauses
		f.AvgPauseDuration = durationMs * estimatedPauseShare / float64(pauses)
	}

	return f
}

// countSyllables approximates the syllable count of a word by counting
// vowel clusters
func countSyllables(word string) int {
	count := 0
	inCluster := false

	for _, r := range strings.ToLower(word) {
		if isVowel(r) {
			if !inCluster {
				count++
				inCluster = true
			}
		} else {
			inCluster = false
		}
	}

	if count == 0 && len(word) > 0 {
		count = 1
	}
	return count
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y', 'ä', 'ö', 'ü':
		return true
	}
	return false
}

// countPauses counts sentence-terminal punctuation as pause markers
func countPauses(text string) int {
	count := 0
	for _, r := range text {
		switch r {
		case '.', '!', '?', '…':
			count++
		}
	}
	return count
}

// clamp01 bounds v into [0,1]
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
