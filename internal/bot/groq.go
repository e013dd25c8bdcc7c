package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GroqConfig configures the chat-completions endpoint and HTTP behavior.
// The endpoint speaks the OpenAI chat-completions wire format.
type GroqConfig struct {
	APIKey     string
	URL        string // defaults to the Groq OpenAI-compatible endpoint
	Model      string
	HTTPClient *http.Client
}

// GroqClient is a Completer backed by an OpenAI-compatible HTTP endpoint.
type GroqClient struct {
	cfg GroqConfig
}

// NewGroqClient builds a GroqClient, filling defaults for unset fields.
func NewGroqClient(cfg GroqConfig) *GroqClient {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = "https://api.groq.com/openai/v1/chat/completions"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GroqClient{cfg: cfg}
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements Completer by calling the chat-completions endpoint with
// a system prompt and a single user turn.
func (c *GroqClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("bot: marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("bot: build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("bot: completion request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("bot: read completion response: %w", err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("bot: decode completion response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("bot: completion endpoint returned %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("bot: completion endpoint returned %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("bot: completion response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
