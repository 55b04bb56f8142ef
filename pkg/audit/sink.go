package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Action classifies what an audit entry records
type Action string

const (
	ActionAccess       Action = "access"
	ActionModification Action = "modification"
)

// Entry records one access to or modification of clinical data. Entries are
// emitted for every de-identified-data submission to an AI service.
type Entry struct {
	RequestID   string    `json:"requestId"`
	ClinicianID string    `json:"clinicianId"`
	ClientID    string    `json:"clientId"`
	Resource    string    `json:"resource"`
	Action      Action    `json:"action"`
	Permitted   bool      `json:"permitted"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Sink is the opaque audit collaborator. Implementations must never block
// the pipeline: delivery failures are logged and absorbed.
type Sink interface {
	LogAccess(ctx context.Context, entry Entry)
	LogModification(ctx context.Context, entry Entry)
}

// LogSink writes audit entries to the structured log. It is the fallback
// when no message broker is configured.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a log-backed audit sink
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// LogAccess records an access entry
func (s *LogSink) LogAccess(ctx context.Context, entry Entry) {
	s.write(ActionAccess, entry)
}

// LogModification records a modification entry
func (s *LogSink) LogModification(ctx context.Context, entry Entry) {
	s.write(ActionModification, entry)
}

func (s *LogSink) write(action Action, entry Entry) {
	entry.Action = action
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.logger.WithFields(logrus.Fields{
		"request_id":   entry.RequestID,
		"clinician_id": entry.ClinicianID,
		"client_id":    entry.ClientID,
		"resource":     entry.Resource,
		"action":       entry.Action,
		"permitted":    entry.Permitted,
	}).Info("Audit entry recorded")
}
