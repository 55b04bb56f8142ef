package pipeline

import (
	"context"
	"strings"
	"time"

	"cliniguard-server/pkg/audio"
	"cliniguard-server/pkg/audit"
	"cliniguard-server/pkg/emotion"
	"cliniguard-server/pkg/errors"
	"cliniguard-server/pkg/metrics"
	"cliniguard-server/pkg/orchestrator"
	"cliniguard-server/pkg/phi"
	"cliniguard-server/pkg/risk"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Authorizer decides whether a clinician may process a client's data. A nil
// authorizer permits everything; denial is surfaced distinctly from
// processing errors because it must not be retried.
type Authorizer interface {
	Authorize(ctx context.Context, clinicianID, clientID string) error
}

// Request is one session processing request
type Request struct {
	ClinicianID string                        `json:"clinicianId"`
	ClientID    string                        `json:"clientId"`
	SessionID   string                        `json:"sessionId"`
	Transcript  string                        `json:"transcript"`
	DurationMs  float64                       `json:"durationMs"`
	Mode        orchestrator.Mode             `json:"mode"`
	Patient     *orchestrator.PatientContext  `json:"patient,omitempty"`
	Audio       *audio.Features               `json:"audio,omitempty"`
}

// SessionResult is the combined output of one pipeline invocation
type SessionResult struct {
	RequestID   string                       `json:"requestId"`
	SessionID   string                       `json:"sessionId"`
	Note        *orchestrator.StructuredNote `json:"note"`
	Emotions    emotion.DetectionResult      `json:"emotions"`
	Risk        *risk.Assessment             `json:"risk"`
	ProcessedAt time.Time                    `json:"processedAt"`
}

// Config holds pipeline limits
type Config struct {
	MaxTranscriptLength int
}

// Pipeline ties the PHI shield, emotion engine, orchestrator and risk engine
// together for one request at a time. Every intermediate value, the PHI map
// above all, is per-request and discarded when the call returns.
type Pipeline struct {
	logger       *logrus.Logger
	config       Config
	shield       *phi.Shield
	emotions     *emotion.Engine
	orchestrator *orchestrator.Orchestrator
	riskEngine   *risk.Engine
	sink         audit.Sink
	authorizer   Authorizer
}

// New creates a new session pipeline
func New(
	logger *logrus.Logger,
	config Config,
	shield *phi.Shield,
	emotions *emotion.Engine,
	orch *orchestrator.Orchestrator,
	riskEngine *risk.Engine,
	sink audit.Sink,
	authorizer Authorizer,
) *Pipeline {
	if config.MaxTranscriptLength <= 0 {
		config.MaxTranscriptLength = 100000
	}
	if sink == nil {
		sink = audit.NewLogSink(logger)
	}
	return &Pipeline{
		logger:       logger,
		config:       config,
		shield:       shield,
		emotions:     emotions,
		orchestrator: orch,
		riskEngine:   riskEngine,
		sink:         sink,
		authorizer:   authorizer,
	}
}

// ProcessSession runs the full safety pipeline over one session transcript.
// Only input-validation and access-denial failures surface as errors; AI
// failures degrade inside the components and still yield a complete result.
func (p *Pipeline) ProcessSession(ctx context.Context, req Request) (*SessionResult, error) {
	startTime := time.Now()
	requestID := uuid.NewString()

	if err := p.validate(req); err != nil {
		p.recordOutcome("rejected", startTime)
		return nil, err
	}

	if p.authorizer != nil {
		if err := p.authorizer.Authorize(ctx, req.ClinicianID, req.ClientID); err != nil {
			p.sink.LogAccess(ctx, audit.Entry{
				RequestID:   requestID,
				ClinicianID: req.ClinicianID,
				ClientID:    req.ClientID,
				Resource:    "session-transcript",
				Permitted:   false,
				Detail:      err.Error(),
			})
			p.recordOutcome("denied", startTime)
			return nil, errors.NewPermissionDenied("clinician is not permitted to process this client", map[string]interface{}{
				"clinician_id": req.ClinicianID,
				"client_id":    req.ClientID,
			})
		}
	}

	// Scrub every payload that could reach an AI service before anything
	// else happens. Prior case data shares the transcript's map so the note
	// can be re-identified in one pass.
	priorData := ""
	if req.Patient != nil {
		priorData = req.Patient.RawData
	}
	scrubbed, phiMap := p.shield.DeidentifyMany([]string{req.Transcript, priorData})
	scrubbedTranscript := scrubbed[0]

	patient := req.Patient
	if patient != nil {
		scrubbedPatient := *patient
		scrubbedPatient.RawData = scrubbed[1]
		patient = &scrubbedPatient
	}

	p.sink.LogAccess(ctx, audit.Entry{
		RequestID:   requestID,
		ClinicianID: req.ClinicianID,
		ClientID:    req.ClientID,
		Resource:    "session-transcript",
		Permitted:   true,
		Detail:      "de-identified transcript submitted for AI processing",
	})

	// Emotion detection must complete (or fail closed to neutral) before
	// risk fusion finalizes its score
	detection := p.emotions.DetectHybrid(ctx, scrubbedTranscript, req.Audio)

	noteChan := make(chan *orchestrator.StructuredNote, 1)
	riskChan := make(chan *risk.Assessment, 1)

	go func() {
		noteChan <- p.orchestrator.ProcessNote(ctx, scrubbedTranscript, req.Mode, patient)
	}()
	go func() {
		scores := detection.Scores
		riskChan <- p.riskEngine.Assess(ctx, scrubbedTranscript, &scores, req.Audio)
	}()

	note := <-noteChan
	assessment := <-riskChan

	// Any AI output is re-identified before it leaves the pipeline
	note.Subjective = p.shield.Reidentify(note.Subjective, phiMap)
	note.Objective = p.shield.Reidentify(note.Objective, phiMap)
	note.Assessment = p.shield.Reidentify(note.Assessment, phiMap)
	note.Plan = p.shield.Reidentify(note.Plan, phiMap)

	p.sink.LogModification(ctx, audit.Entry{
		RequestID:   requestID,
		ClinicianID: req.ClinicianID,
		ClientID:    req.ClientID,
		Resource:    "clinical-note:" + note.ID,
		Permitted:   true,
		Detail:      "structured note generated",
	})

	p.recordOutcome("processed", startTime)

	return &SessionResult{
		RequestID:   requestID,
		SessionID:   req.SessionID,
		Note:        note,
		Emotions:    detection,
		Risk:        assessment,
		ProcessedAt: time.Now().UTC(),
	}, nil
}

// AssessRisk runs a standalone risk assessment over one transcript. The
// transcript is de-identified before the risk engine can submit any of it to
// an AI service, and signal descriptions are re-identified on the way out so
// the caller sees the original names.
func (p *Pipeline) AssessRisk(ctx context.Context, transcript string, emotions *emotion.Scores, features *audio.Features) *risk.Assessment {
	scrubbed, phiMap := p.shield.Deidentify(transcript)

	assessment := p.riskEngine.Assess(ctx, scrubbed, emotions, features)

	for i := range assessment.Signals {
		assessment.Signals[i].Description = p.shield.Reidentify(assessment.Signals[i].Description, phiMap)
	}

	return assessment
}

// validate rejects malformed requests before any de-identification or AI
// submission happens
func (p *Pipeline) validate(req Request) error {
	if strings.TrimSpace(req.Transcript) == "" {
		return errors.NewInvalidInput("transcript is empty")
	}

	if len(req.Transcript) > p.config.MaxTranscriptLength {
		return errors.NewInvalidInput("transcript exceeds maximum size", map[string]interface{}{
			"length": len(req.Transcript),
			"limit":  p.config.MaxTranscriptLength,
		})
	}

	if strings.TrimSpace(req.ClinicianID) == "" {
		return errors.NewInvalidInput("clinician identifier is required")
	}

	if strings.TrimSpace(req.ClientID) == "" {
		return errors.NewInvalidInput("client identifier is required")
	}

	switch req.Mode {
	case "", orchestrator.ModeStandard, orchestrator.ModePremium, orchestrator.ModeConsultation:
	default:
		return errors.NewInvalidInput("unknown processing mode", map[string]interface{}{
			"mode": string(req.Mode),
		})
	}

	return nil
}

func (p *Pipeline) recordOutcome(outcome string, startTime time.Time) {
	if !metrics.Enabled() || metrics.SessionsProcessed == nil {
		return
	}
	metrics.SessionsProcessed.WithLabelValues(outcome).Inc()
	metrics.SessionDuration.WithLabelValues(outcome).Observe(time.Since(startTime).Seconds())
}
