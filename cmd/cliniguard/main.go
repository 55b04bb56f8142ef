package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"cliniguard-server/pkg/ai"
	"cliniguard-server/pkg/audio"
	"cliniguard-server/pkg/audit"
	"cliniguard-server/pkg/config"
	"cliniguard-server/pkg/emotion"
	http_server "cliniguard-server/pkg/http"
	"cliniguard-server/pkg/metrics"
	"cliniguard-server/pkg/orchestrator"
	"cliniguard-server/pkg/phi"
	"cliniguard-server/pkg/pipeline"
	"cliniguard-server/pkg/risk"
)

var (
	logger     = logrus.New()
	appConfig  *config.Config
	aiManager  *ai.ProviderManager
	auditSink  *audit.AMQPSink
	httpServer *http_server.Server

	// Context for graceful shutdown
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func main() {
	// Basic logger configuration until the real one is loaded
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	rootCtx, rootCancel = context.WithCancel(context.Background())
	defer rootCancel()

	if err := initialize(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}

	if appConfig.HTTP.Enabled {
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.WithError(err).Fatal("HTTP server failed")
			}
		}()
		logger.WithField("port", appConfig.HTTP.Port).Info("HTTP server started")
	} else {
		logger.Info("HTTP server is disabled by configuration")
	}

	// Graceful shutdown handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	rootCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Error shutting down HTTP server")
		} else {
			logger.Info("HTTP server shut down successfully")
		}
	}

	if auditSink != nil {
		auditSink.Close()
	}

	logger.Info("Shutdown complete")
}

// initialize loads configuration and wires the full processing pipeline
func initialize() error {
	var err error
	appConfig, err = config.Load(logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	applyLoggingConfig(appConfig.Logging)

	if appConfig.HTTP.EnableMetrics {
		metrics.Init(logger)
	} else {
		metrics.SetEnabled(false)
	}

	aiManager = ai.NewProviderManager(logger, appConfig.AI.DefaultProvider)
	registerProviders()

	auditSink = audit.NewAMQPSink(logger, audit.AMQPConfig{
		URL:          appConfig.Messaging.AMQPURL,
		ExchangeName: appConfig.Messaging.ExchangeName,
		RoutingKey:   appConfig.Messaging.RoutingKey,
	})
	auditSink.Connect()

	shield := phi.NewShield(logger)

	emotionEngine := emotion.NewEngine(logger, aiManager, emotion.Config{
		TranscriptWeight:     appConfig.Emotion.TranscriptWeight,
		AudioWeight:          appConfig.Emotion.AudioWeight,
		HybridConfidence:     appConfig.Emotion.HybridConfidence,
		TranscriptConfidence: appConfig.Emotion.TranscriptConfidence,
		Thresholds:           audio.DefaultIndicatorThresholds(),
	})

	orch := orchestrator.NewOrchestrator(logger, orchestratorConfig(appConfig), aiManager)
	riskEngine := risk.NewEngine(logger, riskConfig(appConfig), aiManager, emotionEngine)

	p := pipeline.New(
		logger,
		pipeline.Config{MaxTranscriptLength: appConfig.Pipeline.MaxTranscriptLength},
		shield,
		emotionEngine,
		orch,
		riskEngine,
		auditSink,
		nil,
	)

	wsHandler := http_server.NewAudioStreamHandler(logger, audio.StreamConfig{
		VoiceBandMinHz:   appConfig.Audio.VoiceBandMinHz,
		VoiceBandMaxHz:   appConfig.Audio.VoiceBandMaxHz,
		PitchHistorySize: appConfig.Audio.PitchHistorySize,
		SampleInterval:   appConfig.Audio.SampleInterval,
	})

	httpServer = http_server.NewServer(logger, &http_server.Config{
		Port:          appConfig.HTTP.Port,
		EnableMetrics: appConfig.HTTP.EnableMetrics,
		ReadTimeout:   appConfig.HTTP.ReadTimeout,
		WriteTimeout:  appConfig.HTTP.WriteTimeout,
	}, p, wsHandler)
	// The standalone risk endpoint goes through the pipeline so its
	// transcript is de-identified before any AI submission
	httpServer.SetRiskAssessor(p)

	return nil
}

// registerProviders registers every configured AI completion provider. A
// provider that fails to initialize is skipped so the remaining providers
// stay available; with none registered the orchestrator degrades to
// placeholder notes on its own.
func registerProviders() {
	for _, name := range appConfig.AI.Providers {
		var provider ai.CompletionProvider
		switch name {
		case "openai":
			provider = ai.NewOpenAIProvider(logger, appConfig.AI.OpenAIURL, appConfig.AI.OpenAIModel, appConfig.AI.RequestTimeout)
		case "anthropic":
			provider = ai.NewAnthropicProvider(logger, appConfig.AI.AnthropicURL, appConfig.AI.AnthropicModel, appConfig.AI.RequestTimeout)
		case "mock":
			provider = ai.NewMockProvider(logger)
		default:
			logger.WithField("provider", name).Warn("Unknown AI provider in configuration, skipping")
			continue
		}

		if err := aiManager.RegisterProvider(provider); err != nil {
			logger.WithFields(logrus.Fields{
				"provider": name,
				"error":    err,
			}).Warn("Skipping AI provider that failed to initialize")
		}
	}
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	oc := orchestrator.DefaultConfig()

	oc.SessionWeight = cfg.Complexity.SessionWeight
	oc.DataWeight = cfg.Complexity.DataWeight
	oc.RiskFactorWeight = cfg.Complexity.RiskFactorWeight
	oc.SessionCap = cfg.Complexity.SessionCap
	oc.DataCap = cfg.Complexity.DataCap
	oc.RiskFactorCap = cfg.Complexity.RiskFactorCap
	oc.LengthDivisor = cfg.Complexity.LengthDivisor
	oc.WordDivisor = cfg.Complexity.WordDivisor
	oc.KeywordDivisor = cfg.Complexity.KeywordDivisor
	oc.HybridCutoff = cfg.Complexity.HybridCutoff
	oc.SummaryThreshold = cfg.Complexity.SummaryThreshold
	oc.PrimaryProvider = cfg.AI.DefaultProvider
	oc.SecondaryProvider = cfg.AI.SecondaryProvider

	// The estimate's keyword-density term reuses the risk engine's two most
	// severe keyword tiers
	oc.RiskKeywords = append(append([]string{}, cfg.Risk.CriticalKeywords...), cfg.Risk.HighKeywords...)

	return oc
}

func riskConfig(cfg *config.Config) risk.Config {
	rc := risk.DefaultConfig()

	rc.CriticalKeywords = cfg.Risk.CriticalKeywords
	rc.HighKeywords = cfg.Risk.HighKeywords
	rc.MediumKeywords = cfg.Risk.MediumKeywords
	rc.CriticalKeywordConfidence = cfg.Risk.CriticalKeywordConfidence
	rc.HighKeywordConfidence = cfg.Risk.HighKeywordConfidence
	rc.MediumKeywordConfidence = cfg.Risk.MediumKeywordConfidence
	rc.DespairSadnessMin = cfg.Risk.DespairSadnessMin
	rc.DespairHopeMax = cfg.Risk.DespairHopeMax
	rc.DespairConfidence = cfg.Risk.DespairConfidence
	rc.PanicFearMin = cfg.Risk.PanicFearMin
	rc.PanicAnxietyMin = cfg.Risk.PanicAnxietyMin
	rc.PanicConfidence = cfg.Risk.PanicConfidence
	rc.LowMoodMax = cfg.Risk.LowMoodMax
	rc.LowMoodConfidence = cfg.Risk.LowMoodConfidence
	rc.FlatAffectPitchMaxHz = cfg.Risk.FlatAffectPitchMaxHz
	rc.FlatAffectTempoMax = cfg.Risk.FlatAffectTempoMax
	rc.FlatAffectConfidence = cfg.Risk.FlatAffectConfidence
	rc.InstabilityPitchVarMin = cfg.Risk.InstabilityPitchVarMin
	rc.InstabilityPauseMin = cfg.Risk.InstabilityPauseMin
	rc.InstabilityConfidence = cfg.Risk.InstabilityConfidence
	rc.CriticalWeight = cfg.Risk.CriticalWeight
	rc.HighWeight = cfg.Risk.HighWeight
	rc.MediumWeight = cfg.Risk.MediumWeight
	rc.LowWeight = cfg.Risk.LowWeight
	rc.CriticalCutoff = cfg.Risk.CriticalCutoff
	rc.HighCutoff = cfg.Risk.HighCutoff
	rc.MediumCutoff = cfg.Risk.MediumCutoff
	rc.CriticalDowngradeCap = cfg.Risk.CriticalDowngradeCap
	rc.HighDowngradeCap = cfg.Risk.HighDowngradeCap
	rc.PatternScanMinLength = cfg.Risk.PatternScanMinLength

	return rc
}

// applyLoggingConfig replaces the bootstrap logger settings with the
// configured ones
func applyLoggingConfig(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithField("level", cfg.Level).Warn("Invalid log level, defaulting to info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}
