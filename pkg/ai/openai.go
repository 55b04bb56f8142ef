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

// OpenAIProvider implements CompletionProvider against the OpenAI chat
// completions API
type OpenAIProvider struct {
	logger *logrus.Logger
	apiKey string
	apiURL string
	model  string
	client *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(logger *logrus.Logger, apiURL, model string, timeout time.Duration) *OpenAIProvider {
	return &OpenAIProvider{
		logger: logger,
		apiURL: apiURL,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Initialize initializes the OpenAI client
func (p *OpenAIProvider) Initialize() error {
	p.apiKey = os.Getenv("OPENAI_API_KEY")
	if p.apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set in the environment")
	}
	p.logger.Info("OpenAI provider initialized successfully")
	return nil
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// Complete submits a prompt to the OpenAI chat completions API
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	payload := openAIRequest{
		Model: p.model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode OpenAI request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create OpenAI request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request to OpenAI API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OpenAI API returned non-200 status code: %d", resp.StatusCode)
	}

	var result openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode OpenAI response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no completion found in OpenAI response")
	}

	return result.Choices[0].Message.Content, nil
}
