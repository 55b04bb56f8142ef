package audio

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"cliniguard-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// StreamConfig holds the streaming analyzer configuration
type StreamConfig struct {
	// Human voice band; samples outside it are replaced by the previous
	// valid sample rather than entering the history raw
	VoiceBandMinHz float64
	VoiceBandMaxHz float64

	// PitchHistorySize bounds the rolling pitch history
	PitchHistorySize int

	// SampleInterval is the polling interval of the capture loop
	SampleInterval time.Duration
}

// DefaultStreamConfig returns the built-in streaming configuration
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		VoiceBandMinHz:   85,
		VoiceBandMaxHz:   255,
		PitchHistorySize: 100,
		SampleInterval:   100 * time.Millisecond,
	}
}

// SampleFrame is one frequency-domain measurement delivered by the platform
// audio capture layer
type SampleFrame struct {
	PitchHz float64 `json:"pitch"`
	Volume  float64 `json:"volume"`
	Energy  float64 `json:"energy"`
}

// CaptureSource abstracts the platform-provided audio capture handle. The
// analyzer owns the source for the lifetime of its run loop and closes it on
// every exit path.
type CaptureSource interface {
	// Sample returns the next frequency-domain frame, blocking until one is
	// available or the source is exhausted (io.EOF)
	Sample() (SampleFrame, error)

	io.Closer
}

// StreamAnalyzer maintains a rolling pitch history from live samples and
// derives Features on demand. All methods are safe for concurrent use.
type StreamAnalyzer struct {
	logger *logrus.Logger
	config StreamConfig

	mu           sync.Mutex
	pitchHistory []float64
	historyIndex int
	historyFull  bool
	lastValid    float64
	volume       float64
	energy       float64
	sampleCount  int

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewStreamAnalyzer creates a new streaming analyzer
func NewStreamAnalyzer(logger *logrus.Logger, config StreamConfig) *StreamAnalyzer {
	if config.PitchHistorySize <= 0 {
		config.PitchHistorySize = DefaultStreamConfig().PitchHistorySize
	}
	if config.SampleInterval <= 0 {
		config.SampleInterval = DefaultStreamConfig().SampleInterval
	}
	if config.VoiceBandMaxHz <= config.VoiceBandMinHz {
		def := DefaultStreamConfig()
		config.VoiceBandMinHz = def.VoiceBandMinHz
		config.VoiceBandMaxHz = def.VoiceBandMaxHz
	}

	return &StreamAnalyzer{
		logger:       logger,
		config:       config,
		pitchHistory: make([]float64, config.PitchHistorySize),
		stopChan:     make(chan struct{}),
	}
}

// Run polls the capture source until the context is canceled, Stop is called
// or the source reports EOF. The source is closed on every exit path.
func (a *StreamAnalyzer) Run(ctx context.Context, source CaptureSource) error {
	defer func() {
		if err := source.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close audio capture source")
		}
	}()

	if metrics.Enabled() && metrics.AudioStreamsActive != nil {
		metrics.AudioStreamsActive.Inc()
		defer metrics.AudioStreamsActive.Dec()
	}

	ticker := time.NewTicker(a.config.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("Audio stream analyzer canceled")
			return ctx.Err()
		case <-a.stopChan:
			a.logger.Debug("Audio stream analyzer stopped")
			return nil
		case <-ticker.C:
			frame, err := source.Sample()
			if err != nil {
				if err == io.EOF {
					a.logger.Debug("Audio capture source exhausted")
					return nil
				}
				return err
			}
			a.AddSample(frame)
		}
	}
}

// Stop signals the run loop to terminate. Safe to call more than once.
func (a *StreamAnalyzer) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopChan)
	})
}

// AddSample records one frequency-domain frame. Pitch values outside the
// configured voice band are replaced by the previous valid sample; a leading
// out-of-band sample is dropped entirely.
func (a *StreamAnalyzer) AddSample(frame SampleFrame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pitch := frame.PitchHz
	if pitch < a.config.VoiceBandMinHz || pitch > a.config.VoiceBandMaxHz {
		if a.lastValid == 0 {
			return
		}
		pitch = a.lastValid
	} else {
		a.lastValid = pitch
	}

	a.pitchHistory[a.historyIndex] = pitch
	a.historyIndex = (a.historyIndex + 1) % len(a.pitchHistory)
	if a.historyIndex == 0 {
		a.historyFull = true
	}

	// Exponential moving average keeps volume and energy responsive without
	// jitter from single frames
	a.volume = 0.9*a.volume + 0.1*clamp01(frame.Volume)
	a.energy = 0.9*a.energy + 0.1*clamp01(frame.Energy)
	a.sampleCount++

	if metrics.Enabled() && metrics.AudioSamplesTotal != nil {
		metrics.AudioSamplesTotal.Inc()
	}
}

// SampleCount returns the number of accepted samples so far
func (a *StreamAnalyzer) SampleCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sampleCount
}

// CurrentFeatures combines the transcript-derived estimates with the pitch
// statistics accumulated from the live stream
func (a *StreamAnalyzer) CurrentFeatures(text string, durationMs float64) Features {
	f := EstimateFromTranscript(text, durationMs)

	a.mu.Lock()
	defer a.mu.Unlock()

	history := a.currentHistory()
	if len(history) == 0 {
		return f
	}

	f.Pitch = mean(history)
	f.PitchVariation = stddev(history)
	f.Volume = a.volume
	f.Energy = a.energy

	return f
}

// currentHistory returns the populated portion of the pitch ring buffer.
// Caller must hold the mutex.
func (a *StreamAnalyzer) currentHistory() []float64 {
	if a.historyFull {
		return a.pitchHistory
	}
	return a.pitchHistory[:a.historyIndex]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev computes the sample standard deviation
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	m := mean(values)
	sum := 0.0
	for _, v := range values {
		diff := v - m
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
