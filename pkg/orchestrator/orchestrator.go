package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cliniguard-server/pkg/errors"
	"cliniguard-server/pkg/metrics"
	"cliniguard-server/pkg/risk"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Mode selects the processing tier requested by the caller
type Mode string

const (
	ModeStandard     Mode = "standard"
	ModePremium      Mode = "premium"
	ModeConsultation Mode = "consultation"
)

// Strategy identifies how a note was produced
type Strategy string

const (
	StrategySingle       Strategy = "single"
	StrategyHybrid       Strategy = "hybrid"
	StrategyConsultation Strategy = "consultation"
	StrategyFallback     Strategy = "fallback"
)

// CompletionService is the provider surface the orchestrator depends on
type CompletionService interface {
	CompleteWith(ctx context.Context, providerName, prompt string) (string, error)
}

// Config holds the orchestrator's scoring weights, routing thresholds and
// provider assignments
type Config struct {
	// Historical complexity weights and caps
	SessionWeight    float64
	DataWeight       float64
	RiskFactorWeight float64
	SessionCap       float64
	DataCap          float64
	RiskFactorCap    float64

	// Transcript-only estimate weights and divisors
	LengthWeight   float64
	WordWeight     float64
	KeywordWeight  float64
	LengthDivisor  float64
	WordDivisor    float64
	KeywordDivisor float64

	// RiskKeywords feed the keyword-density term of the estimate
	RiskKeywords []string

	// HybridCutoff routes standard-mode cases at or above it to hybrid
	HybridCutoff float64

	// SummaryThreshold is the prior-data size (chars) above which hybrid
	// runs a summarization pass first
	SummaryThreshold int

	// Provider assignments for the two hybrid legs
	PrimaryProvider   string
	SecondaryProvider string
}

// DefaultConfig returns the built-in orchestrator configuration. The
// keyword-density term of the transcript estimate counts matches against the
// two most severe risk keyword tiers.
func DefaultConfig() Config {
	critical, high, _ := risk.DefaultKeywordTiers()

	return Config{
		SessionWeight:    0.4,
		DataWeight:       0.4,
		RiskFactorWeight: 0.2,
		SessionCap:       50,
		DataCap:          200000,
		RiskFactorCap:    5,

		LengthWeight:   0.4,
		WordWeight:     0.4,
		KeywordWeight:  0.2,
		LengthDivisor:  5000,
		WordDivisor:    1000,
		KeywordDivisor: 3,

		RiskKeywords: append(critical, high...),

		HybridCutoff:     0.7,
		SummaryThreshold: 10000,

		PrimaryProvider:   "openai",
		SecondaryProvider: "anthropic",
	}
}

// StructuredNote is a generated clinical note in SOAP form
type StructuredNote struct {
	ID          string    `json:"id"`
	Subjective  string    `json:"subjective"`
	Objective   string    `json:"objective"`
	Assessment  string    `json:"assessment"`
	Plan        string    `json:"plan"`
	Strategy    Strategy  `json:"strategy"`
	Complexity  float64   `json:"complexity"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Orchestrator scores case complexity and routes transcripts to a note
// generation strategy
type Orchestrator struct {
	logger  *logrus.Logger
	config  Config
	service CompletionService
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(logger *logrus.Logger, config Config, service CompletionService) *Orchestrator {
	if config.SessionWeight == 0 && config.DataWeight == 0 && config.RiskFactorWeight == 0 {
		config = DefaultConfig()
	}
	return &Orchestrator{
		logger:  logger,
		config:  config,
		service: service,
	}
}

// SelectStrategy applies the mode x complexity routing table
func (o *Orchestrator) SelectStrategy(mode Mode, complexity float64) Strategy {
	switch mode {
	case ModeConsultation:
		return StrategyConsultation
	case ModePremium:
		return StrategyHybrid
	default:
		if complexity >= o.config.HybridCutoff {
			return StrategyHybrid
		}
		return StrategySingle
	}
}

// ProcessNote generates a structured clinical note for a transcript. AI
// failures degrade through the fallback chain and never surface as errors:
// the result is always a well-formed note, a clearly marked placeholder in
// the worst case.
func (o *Orchestrator) ProcessNote(ctx context.Context, transcript string, mode Mode, pc *PatientContext) *StructuredNote {
	complexity := o.ScoreComplexity(pc, transcript)
	strategy := o.SelectStrategy(mode, complexity)

	o.logger.WithFields(logrus.Fields{
		"mode":       mode,
		"complexity": complexity,
		"strategy":   strategy,
	}).Info("Routing note generation")

	if metrics.Enabled() && metrics.StrategySelections != nil {
		metrics.StrategySelections.WithLabelValues(string(strategy)).Inc()
	}

	var note *StructuredNote
	var err error

	switch strategy {
	case StrategyConsultation:
		note, err = o.runConsultation(ctx, transcript, pc)
	case StrategyHybrid:
		note, err = o.runHybrid(ctx, transcript, pc)
	default:
		note, err = o.runSingle(ctx, transcript)
	}

	if err != nil && strategy != StrategySingle {
		o.logger.WithError(err).WithField("strategy", strategy).Warn("Primary strategy failed, falling back to single-service")
		if metrics.Enabled() && metrics.StrategyFallbacks != nil {
			metrics.StrategyFallbacks.WithLabelValues(string(strategy)).Inc()
		}
		note, err = o.runSingle(ctx, transcript)
	}

	if err != nil {
		o.logger.WithError(err).Warn("All note generation strategies failed, returning placeholder note")
		if metrics.Enabled() && metrics.StrategyFallbacks != nil {
			metrics.StrategyFallbacks.WithLabelValues(string(StrategySingle)).Inc()
		}
		note = o.placeholderNote()
	}

	note.Complexity = complexity
	return note
}

const notePrompt = `Generate a structured clinical note in SOAP format from the following
de-identified therapy session transcript. Respond with nothing but a JSON object
with the string keys "subjective", "objective", "assessment" and "plan".
%s
Transcript:
%s`

const summaryPrompt = `Summarize the following de-identified prior case documentation in at most
300 words, preserving clinically relevant history, treatment responses and risk factors.

Documentation:
%s`

// runSingle generates the note with one call to the primary provider
func (o *Orchestrator) runSingle(ctx context.Context, transcript string) (*StructuredNote, error) {
	raw, err := o.service.CompleteWith(ctx, o.config.PrimaryProvider, fmt.Sprintf(notePrompt, "", transcript))
	if err != nil {
		return nil, errors.Wrap(err, "single-service note generation failed")
	}

	note, err := parseNote(raw)
	if err != nil {
		return nil, err
	}
	note.Strategy = StrategySingle
	return note, nil
}

// runHybrid optionally compresses prior context with a summarization pass on
// the primary provider, then generates the note on the secondary provider
func (o *Orchestrator) runHybrid(ctx context.Context, transcript string, pc *PatientContext) (*StructuredNote, error) {
	contextBlock := ""
	if pc != nil && len(pc.RawData) > o.config.SummaryThreshold {
		summary, err := o.service.CompleteWith(ctx, o.config.PrimaryProvider, fmt.Sprintf(summaryPrompt, pc.RawData))
		if err != nil {
			// A failed summary narrows context but does not fail the note
			o.logger.WithError(err).Warn("Summarization pass failed, generating note without prior context")
		} else {
			contextBlock = "Prior case summary:\n" + summary + "\n"
		}
	}

	raw, err := o.service.CompleteWith(ctx, o.config.SecondaryProvider, fmt.Sprintf(notePrompt, contextBlock, transcript))
	if err != nil {
		return nil, errors.Wrap(err, "hybrid note generation failed")
	}

	note, err := parseNote(raw)
	if err != nil {
		return nil, err
	}
	note.Strategy = StrategyHybrid
	return note, nil
}

// runConsultation runs the single and hybrid strategies concurrently and
// merges the results section by section, keeping whichever section is
// longer. One failed branch degrades to the surviving branch.
func (o *Orchestrator) runConsultation(ctx context.Context, transcript string, pc *PatientContext) (*StructuredNote, error) {
	type branch struct {
		note *StructuredNote
		err  error
	}

	singleChan := make(chan branch, 1)
	hybridChan := make(chan branch, 1)

	go func() {
		note, err := o.runSingle(ctx, transcript)
		singleChan <- branch{note, err}
	}()
	go func() {
		note, err := o.runHybrid(ctx, transcript, pc)
		hybridChan <- branch{note, err}
	}()

	single := <-singleChan
	hybrid := <-hybridChan

	switch {
	case single.err != nil && hybrid.err != nil:
		return nil, errors.Wrap(single.err, "both consultation branches failed")
	case single.err != nil:
		o.logger.WithError(single.err).Warn("Single-service consultation branch failed, using hybrid result")
		hybrid.note.Strategy = StrategyConsultation
		return hybrid.note, nil
	case hybrid.err != nil:
		o.logger.WithError(hybrid.err).Warn("Hybrid consultation branch failed, using single-service result")
		single.note.Strategy = StrategyConsultation
		return single.note, nil
	}

	return mergeNotes(single.note, hybrid.note), nil
}

// mergeNotes keeps, per section, the longer of the two candidates. This is a
// deliberately simple tie-break, not a semantic quality judgment.
func mergeNotes(a, b *StructuredNote) *StructuredNote {
	return &StructuredNote{
		ID:          uuid.NewString(),
		Subjective:  longer(a.Subjective, b.Subjective),
		Objective:   longer(a.Objective, b.Objective),
		Assessment:  longer(a.Assessment, b.Assessment),
		Plan:        longer(a.Plan, b.Plan),
		Strategy:    StrategyConsultation,
		GeneratedAt: time.Now().UTC(),
	}
}

// longer compares in runes so multibyte text does not skew the merge
func longer(a, b string) string {
	if len([]rune(b)) > len([]rune(a)) {
		return b
	}
	return a
}

// noteSections is the wire shape the note prompt requests
type noteSections struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// parseNote extracts the SOAP sections from a raw model response
func parseNote(raw string) (*StructuredNote, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, errors.Wrap(errors.ErrUnparseableResponse, "no JSON object in note response")
	}

	var sections noteSections
	if err := json.Unmarshal([]byte(raw[start:end+1]), &sections); err != nil {
		return nil, errors.Wrap(err, "note response is not a JSON object")
	}

	if sections.Subjective == "" && sections.Objective == "" && sections.Assessment == "" && sections.Plan == "" {
		return nil, errors.Wrap(errors.ErrUnparseableResponse, "note response contained no sections")
	}

	return &StructuredNote{
		ID:          uuid.NewString(),
		Subjective:  sections.Subjective,
		Objective:   sections.Objective,
		Assessment:  sections.Assessment,
		Plan:        sections.Plan,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// placeholderMessage marks a note whose generation failed end to end
const placeholderMessage = "[AUTOMATED NOTE GENERATION UNAVAILABLE - manual documentation required]"

func (o *Orchestrator) placeholderNote() *StructuredNote {
	return &StructuredNote{
		ID:          uuid.NewString(),
		Subjective:  placeholderMessage,
		Objective:   placeholderMessage,
		Assessment:  placeholderMessage,
		Plan:        placeholderMessage,
		Strategy:    StrategyFallback,
		GeneratedAt: time.Now().UTC(),
	}
}
