package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AMQPConfig holds AMQP audit publisher configuration
type AMQPConfig struct {
	URL          string
	ExchangeName string
	RoutingKey   string
}

// AMQPSink publishes audit entries to an AMQP exchange. When no URL is
// configured the sink runs disabled and entries fall through to the
// structured log only.
type AMQPSink struct {
	logger    *logrus.Logger
	config    AMQPConfig
	fallback  *LogSink
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.RWMutex
}

// NewAMQPSink creates a new AMQP audit sink
func NewAMQPSink(logger *logrus.Logger, config AMQPConfig) *AMQPSink {
	if config.RoutingKey == "" {
		config.RoutingKey = "audit"
	}
	return &AMQPSink{
		logger:   logger,
		config:   config,
		fallback: NewLogSink(logger),
	}
}

// Connect establishes the connection and declares the exchange. Returns
// false when the sink is unconfigured or the broker is unreachable; the sink
// stays usable either way.
func (s *AMQPSink) Connect() bool {
	s.connMutex.Lock()
	defer s.connMutex.Unlock()

	if s.connected {
		return true
	}

	if s.config.URL == "" {
		s.logger.Warn("AMQP_URL not set, audit publishing runs in log-only mode")
		return false
	}

	conn, err := amqp.Dial(s.config.URL)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to connect to AMQP broker, audit publishing runs in log-only mode")
		return false
	}

	channel, err := conn.Channel()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to open AMQP channel")
		conn.Close()
		return false
	}

	if err := channel.ExchangeDeclare(
		s.config.ExchangeName,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		s.logger.WithError(err).Warn("Failed to declare audit exchange")
		channel.Close()
		conn.Close()
		return false
	}

	s.conn = conn
	s.channel = channel
	s.connected = true

	s.logger.WithFields(logrus.Fields{
		"exchange":    s.config.ExchangeName,
		"routing_key": s.config.RoutingKey,
	}).Info("Connected audit sink to AMQP broker")

	return true
}

// Close shuts down the AMQP connection
func (s *AMQPSink) Close() {
	s.connMutex.Lock()
	defer s.connMutex.Unlock()

	if s.channel != nil {
		s.channel.Close()
		s.channel = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false
}

// LogAccess records an access entry
func (s *AMQPSink) LogAccess(ctx context.Context, entry Entry) {
	entry.Action = ActionAccess
	s.publish(ctx, entry)
}

// LogModification records a modification entry
func (s *AMQPSink) LogModification(ctx context.Context, entry Entry) {
	entry.Action = ActionModification
	s.publish(ctx, entry)
}

// publish delivers the entry to the exchange, falling back to the log on any
// failure. Audit delivery must never block or fail the pipeline.
func (s *AMQPSink) publish(ctx context.Context, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.connMutex.RLock()
	connected := s.connected
	channel := s.channel
	s.connMutex.RUnlock()

	if !connected || channel == nil {
		s.fallback.write(entry.Action, entry)
		return
	}

	body, err := json.Marshal(entry)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode audit entry")
		return
	}

	err = channel.Publish(
		s.config.ExchangeName,
		s.config.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    entry.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to publish audit entry, writing to log instead")
		s.fallback.write(entry.Action, entry)
	}
}
