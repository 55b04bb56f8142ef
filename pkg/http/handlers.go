package http

import (
	"context"
	"encoding/json"
	"net/http"

	"cliniguard-server/pkg/audio"
	"cliniguard-server/pkg/emotion"
	"cliniguard-server/pkg/errors"
	"cliniguard-server/pkg/pipeline"
	"cliniguard-server/pkg/risk"
)

// RiskAssessor is the risk-only surface exposed by /api/v1/risk/assess.
// The transcript crosses a trust boundary here, so the method is the
// pipeline's shielded entry point rather than the risk engine itself:
// implementations must de-identify before any text can reach an AI service.
type RiskAssessor interface {
	AssessRisk(ctx context.Context, transcript string, emotions *emotion.Scores, features *audio.Features) *risk.Assessment
}

// riskRequest is the wire shape of a standalone risk assessment request
type riskRequest struct {
	Transcript string          `json:"transcript"`
	Emotions   *emotion.Scores `json:"emotions,omitempty"`
	Audio      *audio.Features `json:"audio,omitempty"`
}

// SetRiskAssessor wires the standalone risk endpoint
func (s *Server) SetRiskAssessor(assessor RiskAssessor) {
	s.riskAssessor = assessor
}

func (s *Server) handleProcessSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.NewInvalidInput("request body is not valid JSON"))
		return
	}

	result, err := s.pipeline.ProcessSession(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAssessRisk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.riskAssessor == nil {
		s.writeError(w, errors.New("risk assessment is not configured"))
		return
	}

	var req riskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.NewInvalidInput("request body is not valid JSON"))
		return
	}

	if req.Transcript == "" {
		s.writeError(w, errors.NewInvalidInput("transcript is empty"))
		return
	}

	assessment := s.riskAssessor.AssessRisk(r.Context(), req.Transcript, req.Emotions, req.Audio)
	s.writeJSON(w, http.StatusOK, assessment)
}
