package audio

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource replays a fixed list of frames and then reports EOF
type scriptedSource struct {
	mu     sync.Mutex
	frames []SampleFrame
	index  int
	closed bool
}

func (s *scriptedSource) Sample() (SampleFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index >= len(s.frames) {
		return SampleFrame{}, io.EOF
	}
	frame := s.frames[s.index]
	s.index++
	return frame, nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func newStreamTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestAddSampleDropsLeadingOutOfBand(t *testing.T) {
	analyzer := NewStreamAnalyzer(newStreamTestLogger(), DefaultStreamConfig())

	// No valid sample seen yet, so an out-of-band pitch has no replacement
	analyzer.AddSample(SampleFrame{PitchHz: 20})
	assert.Equal(t, 0, analyzer.SampleCount(), "Leading out-of-band sample must be dropped")

	analyzer.AddSample(SampleFrame{PitchHz: 120})
	assert.Equal(t, 1, analyzer.SampleCount())
}

func TestAddSampleReplacesOutOfBandWithLastValid(t *testing.T) {
	analyzer := NewStreamAnalyzer(newStreamTestLogger(), DefaultStreamConfig())

	analyzer.AddSample(SampleFrame{PitchHz: 120})
	analyzer.AddSample(SampleFrame{PitchHz: 1000})
	analyzer.AddSample(SampleFrame{PitchHz: 120})

	f := analyzer.CurrentFeatures("", 0)
	assert.InDelta(t, 120.0, f.Pitch, 1e-9, "Out-of-band sample must be replaced by the previous valid pitch")
	assert.InDelta(t, 0.0, f.PitchVariation, 1e-9)
}

func TestCurrentFeaturesCombinesEstimateAndStream(t *testing.T) {
	analyzer := NewStreamAnalyzer(newStreamTestLogger(), DefaultStreamConfig())

	analyzer.AddSample(SampleFrame{PitchHz: 100, Volume: 0.8, Energy: 0.6})
	analyzer.AddSample(SampleFrame{PitchHz: 140, Volume: 0.8, Energy: 0.6})

	f := analyzer.CurrentFeatures("one two three four. five six.", 30000)

	assert.InDelta(t, 120.0, f.Pitch, 1e-9, "Pitch comes from the stream history")
	assert.Greater(t, f.PitchVariation, 0.0)
	assert.InDelta(t, 12.0, f.Tempo, 1e-9, "Tempo still comes from the transcript estimate")
	assert.Greater(t, f.Volume, 0.0)
}

func TestCurrentFeaturesWithoutSamplesFallsBackToEstimate(t *testing.T) {
	analyzer := NewStreamAnalyzer(newStreamTestLogger(), DefaultStreamConfig())

	f := analyzer.CurrentFeatures("one two three four. five six.", 30000)

	assert.Equal(t, defaultPitchHz, f.Pitch, "Empty history must leave the estimated pitch in place")
	assert.InDelta(t, 12.0, f.Tempo, 1e-9)
}

func TestHistoryRingBufferWrapsAround(t *testing.T) {
	config := DefaultStreamConfig()
	config.PitchHistorySize = 4
	analyzer := NewStreamAnalyzer(newStreamTestLogger(), config)

	for i := 0; i < 10; i++ {
		analyzer.AddSample(SampleFrame{PitchHz: 100})
	}
	analyzer.AddSample(SampleFrame{PitchHz: 200})

	f := analyzer.CurrentFeatures("", 0)
	assert.InDelta(t, 125.0, f.Pitch, 1e-9, "Ring buffer must hold only the most recent samples")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	config := DefaultStreamConfig()
	config.SampleInterval = time.Millisecond
	analyzer := NewStreamAnalyzer(newStreamTestLogger(), config)

	source := &scriptedSource{frames: make([]SampleFrame, 0)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := analyzer.Run(ctx, source)

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, source.isClosed(), "Capture source must be closed on cancellation")
}

func TestRunStopsOnStop(t *testing.T) {
	config := DefaultStreamConfig()
	config.SampleInterval = time.Millisecond
	analyzer := NewStreamAnalyzer(newStreamTestLogger(), config)

	// A source that never reports EOF
	frames := make([]SampleFrame, 10000)
	for i := range frames {
		frames[i] = SampleFrame{PitchHz: 120}
	}
	source := &scriptedSource{frames: frames}

	done := make(chan error, 1)
	go func() {
		done <- analyzer.Run(context.Background(), source)
	}()

	time.Sleep(10 * time.Millisecond)
	analyzer.Stop()
	analyzer.Stop() // must be safe to call twice

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.True(t, source.isClosed(), "Capture source must be closed after Stop")
}

func TestRunDrainsSourceUntilEOF(t *testing.T) {
	config := DefaultStreamConfig()
	config.SampleInterval = time.Millisecond
	analyzer := NewStreamAnalyzer(newStreamTestLogger(), config)

	source := &scriptedSource{frames: []SampleFrame{
		{PitchHz: 110},
		{PitchHz: 130},
		{PitchHz: 150},
	}}

	err := analyzer.Run(context.Background(), source)

	require.NoError(t, err)
	assert.Equal(t, 3, analyzer.SampleCount())
	assert.True(t, source.isClosed())
}
