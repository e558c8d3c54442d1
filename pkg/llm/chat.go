package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// chatClient talks to an OpenAI-compatible chat completion endpoint. OpenAI
// and Groq share this wire format.
type chatClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	provider   string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func newChatClient(provider string, cfg ProviderConfig, apiKey string, httpClient *http.Client) *chatClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &chatClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     apiKey,
		model:      cfg.Model,
		provider:   provider,
	}
}

func (c *chatClient) Generate(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%s API key not configured", c.provider)
	}
	body, err := json.Marshal(chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.7,
		MaxTokens:   4000,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", c.provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed chatCompletionResponse
	jsonErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode != http.StatusOK {
		if jsonErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("%s API error (status %d): %s", c.provider, resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("%s API error (status %d): %s", c.provider, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if jsonErr != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", jsonErr)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
