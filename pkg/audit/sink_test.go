package audit

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkInterfaces(t *testing.T) {
	var _ Sink = (*LogSink)(nil)
	var _ Sink = (*AMQPSink)(nil)
}

func TestLogSinkWritesStructuredEntries(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := NewLogSink(logger)

	sink.LogAccess(context.Background(), Entry{
		RequestID:   "req-1",
		ClinicianID: "clin-1",
		ClientID:    "client-1",
		Resource:    "session-transcript",
		Permitted:   true,
	})
	sink.LogModification(context.Background(), Entry{
		RequestID: "req-1",
		Resource:  "clinical-note:abc",
		Permitted: true,
	})

	require.Len(t, hook.Entries, 2)
	assert.Equal(t, ActionAccess, hook.Entries[0].Data["action"])
	assert.Equal(t, "clin-1", hook.Entries[0].Data["clinician_id"])
	assert.Equal(t, ActionModification, hook.Entries[1].Data["action"])
}

func TestAMQPSinkWithoutURLRunsLogOnly(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)
	sink := NewAMQPSink(logger, AMQPConfig{})

	assert.False(t, sink.Connect(), "No URL means the sink stays disconnected")

	// Publishing must fall back to the structured log, never fail
	sink.LogAccess(context.Background(), Entry{RequestID: "req-2", Permitted: true})

	found := false
	for _, entry := range hook.Entries {
		if entry.Data["request_id"] == "req-2" {
			found = true
		}
	}
	assert.True(t, found, "Disconnected sink must still record the entry in the log")

	sink.Close()
}

func TestAMQPSinkDefaultsRoutingKey(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sink := NewAMQPSink(logger, AMQPConfig{ExchangeName: "audit.events"})

	assert.Equal(t, "audit", sink.config.RoutingKey)
}
