package ai

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// MockProvider implements a scripted AI completion provider for testing
type MockProvider struct {
	logger *logrus.Logger
	name   string

	mu        sync.Mutex
	responses []string
	index     int
	err       error
	prompts   []string
}

// NewMockProvider creates a new mock provider that replays the given
// responses in order, repeating the last one when exhausted
func NewMockProvider(logger *logrus.Logger, responses ...string) *MockProvider {
	return &MockProvider{
		logger:    logger,
		name:      "mock",
		responses: responses,
	}
}

// WithName overrides the provider name so tests can register several mocks
func (p *MockProvider) WithName(name string) *MockProvider {
	p.name = name
	return p
}

// FailWith makes every subsequent Complete call return the given error
func (p *MockProvider) FailWith(err error) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	return p
}

// Name returns the provider name
func (p *MockProvider) Name() string {
	return p.name
}

// Initialize initializes the mock provider
func (p *MockProvider) Initialize() error {
	if p.logger != nil {
		p.logger.WithField("provider", p.name).Debug("Mock AI provider initialized")
	}
	return nil
}

// Complete records the prompt and returns the next scripted response
func (p *MockProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.prompts = append(p.prompts, prompt)

	if p.err != nil {
		return "", p.err
	}

	if len(p.responses) == 0 {
		return "", nil
	}

	response := p.responses[p.index]
	if p.index < len(p.responses)-1 {
		p.index++
	}
	return response, nil
}

// Prompts returns a copy of all prompts seen so far
func (p *MockProvider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.prompts))
	copy(out, p.prompts)
	return out
}
