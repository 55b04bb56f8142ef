package emotion

import "math"

// Scores is the six-dimension emotion vector plus an overall-mood scalar.
// Every bounded dimension lives in [0,1] and OverallMood in [-1,1]; callers
// always receive a clamped vector with no NaN fields.
type Scores struct {
	Sadness     float64 `json:"sadness"`
	Anxiety     float64 `json:"anxiety"`
	Anger       float64 `json:"anger"`
	Happiness   float64 `json:"happiness"`
	Fear        float64 `json:"fear"`
	Hope        float64 `json:"hope"`
	OverallMood float64 `json:"overallMood"`
}

// Neutral returns the explicit neutral vector used whenever detection fails.
// Failing closed to neutral, never to an extreme, keeps a broken AI call from
// manufacturing a false risk alarm.
func Neutral() Scores {
	return Scores{
		Sadness:   0.5,
		Anxiety:   0.5,
		Anger:     0.5,
		Happiness: 0.5,
		Fear:      0.5,
		Hope:      0.5,
	}
}

// Clamp bounds every field into its declared domain and replaces NaN with
// the neutral value for that field
func (s Scores) Clamp() Scores {
	return Scores{
		Sadness:     clampUnit(s.Sadness),
		Anxiety:     clampUnit(s.Anxiety),
		Anger:       clampUnit(s.Anger),
		Happiness:   clampUnit(s.Happiness),
		Fear:        clampUnit(s.Fear),
		Hope:        clampUnit(s.Hope),
		OverallMood: clampMood(s.OverallMood),
	}
}

// Merge combines two vectors with the given weight on s (1-weight on other),
// clamping the result
func (s Scores) Merge(other Scores, weight float64) Scores {
	w := clampUnit(weight)
	return Scores{
		Sadness:     w*s.Sadness + (1-w)*other.Sadness,
		Anxiety:     w*s.Anxiety + (1-w)*other.Anxiety,
		Anger:       w*s.Anger + (1-w)*other.Anger,
		Happiness:   w*s.Happiness + (1-w)*other.Happiness,
		Fear:        w*s.Fear + (1-w)*other.Fear,
		Hope:        w*s.Hope + (1-w)*other.Hope,
		OverallMood: w*s.OverallMood + (1-w)*other.OverallMood,
	}.Clamp()
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampMood(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
