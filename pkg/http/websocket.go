package http

import (
	"encoding/json"
	"net/http"

	"cliniguard-server/pkg/audio"
	"cliniguard-server/pkg/metrics"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// AudioStreamHandler ingests live frequency-domain sample frames over a
// websocket and serves paralinguistic features derived from them. Each
// connection owns its own analyzer; nothing survives the connection.
type AudioStreamHandler struct {
	logger   *logrus.Logger
	config   audio.StreamConfig
	upgrader websocket.Upgrader
}

// NewAudioStreamHandler creates a new websocket audio handler
func NewAudioStreamHandler(logger *logrus.Logger, config audio.StreamConfig) *AudioStreamHandler {
	return &AudioStreamHandler{
		logger: logger,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// inboundMessage is one client frame. Type "sample" carries a measurement;
// type "features" requests the current feature snapshot.
type inboundMessage struct {
	Type       string  `json:"type"`
	Pitch      float64 `json:"pitch,omitempty"`
	Volume     float64 `json:"volume,omitempty"`
	Energy     float64 `json:"energy,omitempty"`
	Transcript string  `json:"transcript,omitempty"`
	DurationMs float64 `json:"durationMs,omitempty"`
}

// featuresResponse is the server reply to a "features" request
type featuresResponse struct {
	Type     string         `json:"type"`
	Features audio.Features `json:"features"`
	Samples  int            `json:"samples"`
}

// Handle upgrades the connection and runs the sample ingest loop. The
// analyzer is stopped on every exit path so a dropped connection can never
// leak an active capture session.
func (h *AudioStreamHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade audio stream connection")
		return
	}

	analyzer := audio.NewStreamAnalyzer(h.logger, h.config)
	defer analyzer.Stop()
	defer conn.Close()

	if metrics.Enabled() && metrics.AudioStreamsActive != nil {
		metrics.AudioStreamsActive.Inc()
		defer metrics.AudioStreamsActive.Dec()
	}

	h.logger.WithField("remote", conn.RemoteAddr().String()).Info("Audio stream connected")

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).Warn("Audio stream closed unexpectedly")
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.WithError(err).Debug("Discarding malformed audio stream message")
			continue
		}

		switch msg.Type {
		case "sample":
			analyzer.AddSample(audio.SampleFrame{
				PitchHz: msg.Pitch,
				Volume:  msg.Volume,
				Energy:  msg.Energy,
			})
		case "features":
			response := featuresResponse{
				Type:     "features",
				Features: analyzer.CurrentFeatures(msg.Transcript, msg.DurationMs),
				Samples:  analyzer.SampleCount(),
			}
			if err := conn.WriteJSON(response); err != nil {
				h.logger.WithError(err).Warn("Failed to write features response")
				return
			}
		default:
			h.logger.WithField("type", msg.Type).Debug("Ignoring unknown audio stream message type")
		}
	}
}
