package ai

import (
	"context"
	"time"

	"cliniguard-server/pkg/errors"
	"cliniguard-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// CompletionProvider defines the interface for AI text completion services.
// Providers receive de-identified text only; callers are responsible for
// scrubbing PHI before submitting a prompt.
type CompletionProvider interface {
	// Initialize initializes the provider with any required configuration
	Initialize() error

	// Name returns the provider name
	Name() string

	// Complete submits a text prompt and returns the raw model output
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderManager manages all registered AI completion providers
type ProviderManager struct {
	logger          *logrus.Logger
	providers       map[string]CompletionProvider
	defaultProvider string
}

// NewProviderManager creates a new provider manager
func NewProviderManager(logger *logrus.Logger, defaultProvider string) *ProviderManager {
	return &ProviderManager{
		logger:          logger,
		providers:       make(map[string]CompletionProvider),
		defaultProvider: defaultProvider,
	}
}

// RegisterProvider registers an AI completion provider
func (m *ProviderManager) RegisterProvider(provider CompletionProvider) error {
	if err := provider.Initialize(); err != nil {
		m.logger.WithFields(logrus.Fields{
			"provider": provider.Name(),
			"error":    err,
		}).Error("Failed to initialize AI provider")
		return err
	}

	m.providers[provider.Name()] = provider
	m.logger.WithField("provider", provider.Name()).Info("Registered AI provider")

	return nil
}

// GetProvider returns a provider by name
func (m *ProviderManager) GetProvider(name string) (CompletionProvider, bool) {
	provider, exists := m.providers[name]
	return provider, exists
}

// GetDefaultProvider returns the default provider
func (m *ProviderManager) GetDefaultProvider() (CompletionProvider, bool) {
	return m.GetProvider(m.defaultProvider)
}

// CompleteWith submits a prompt to the named provider, falling back to the
// default provider when the name is not registered
func (m *ProviderManager) CompleteWith(ctx context.Context, providerName, prompt string) (string, error) {
	startTime := time.Now()

	provider, exists := m.GetProvider(providerName)
	if !exists {
		m.logger.WithFields(logrus.Fields{
			"provider":         providerName,
			"default_provider": m.defaultProvider,
		}).Warn("Provider not found, falling back to default")

		provider, exists = m.GetDefaultProvider()
		if !exists {
			return "", errors.ErrNoProviderAvailable
		}
	}

	result, err := provider.Complete(ctx, prompt)

	elapsed := time.Since(startTime)
	metrics.ObserveAIRequest(provider.Name(), elapsed, err)
	m.logger.WithFields(logrus.Fields{
		"provider":    provider.Name(),
		"duration_ms": elapsed.Milliseconds(),
		"error":       err != nil,
	}).Debug("AI completion finished")

	return result, err
}

// Complete submits a prompt to the default provider
func (m *ProviderManager) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWith(ctx, m.defaultProvider, prompt)
}
