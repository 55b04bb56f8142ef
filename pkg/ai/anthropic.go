package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// AnthropicProvider implements CompletionProvider against the Anthropic
// messages API
type AnthropicProvider struct {
	logger *logrus.Logger
	apiKey string
	apiURL string
	model  string
	client *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(logger *logrus.Logger, apiURL, model string, timeout time.Duration) *AnthropicProvider {
	return &AnthropicProvider{
		logger: logger,
		apiURL: apiURL,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Initialize initializes the Anthropic client
func (p *AnthropicProvider) Initialize() error {
	p.apiKey = os.Getenv("ANTHROPIC_API_KEY")
	if p.apiKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is not set in the environment")
	}
	p.logger.Info("Anthropic provider initialized successfully")
	return nil
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete submits a prompt to the Anthropic messages API
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	payload := anthropicRequest{
		Model:     p.model,
		MaxTokens: 4096,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode Anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create Anthropic request: %w", err)
	}

	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request to Anthropic API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Anthropic API returned non-200 status code: %d", resp.StatusCode)
	}

	var result anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode Anthropic response: %w", err)
	}

	for _, block := range result.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("no text content found in Anthropic response")
}
