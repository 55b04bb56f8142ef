package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cliniguard-server/pkg/errors"
	"cliniguard-server/pkg/metrics"
	"cliniguard-server/pkg/pipeline"

	"github.com/sirupsen/logrus"
)

// Config holds the HTTP server configuration
type Config struct {
	Port          int
	EnableMetrics bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// DefaultConfig returns the built-in HTTP configuration
func DefaultConfig() *Config {
	return &Config{
		Port:          8080,
		EnableMetrics: true,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
	}
}

// Server exposes the safety pipeline over HTTP
type Server struct {
	config       *Config
	logger       *logrus.Logger
	pipeline     *pipeline.Pipeline
	riskAssessor RiskAssessor
	wsHandler    *AudioStreamHandler
	httpServer   *http.Server
	mux          *http.ServeMux
	startTime    time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(logger *logrus.Logger, config *Config, p *pipeline.Pipeline, wsHandler *AudioStreamHandler) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		config:    config,
		logger:    logger,
		pipeline:  p,
		wsHandler: wsHandler,
		mux:       http.NewServeMux(),
		startTime: time.Now(),
	}

	server.registerRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      server.mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/v1/sessions/process", s.handleProcessSession)
	s.mux.HandleFunc("/api/v1/risk/assess", s.handleAssessRisk)

	if s.wsHandler != nil {
		s.mux.HandleFunc("/ws/audio", s.wsHandler.Handle)
	}

	if s.config.EnableMetrics {
		s.mux.Handle("/metrics", metrics.Handler())
	}
}

// Start runs the HTTP server until it is shut down
func (s *Server) Start() error {
	s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

// writeJSON writes a JSON response body
func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode HTTP response")
	}
}

// writeError maps pipeline errors to HTTP statuses. AI-service failures never
// reach this path; they degrade inside the components.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	errors.WriteError(w, err)
}
