package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Duye0120/AirVoice/internal/config"
)

const (
	// defaultAnthropicBaseURL is the standard Anthropic API endpoint.
	defaultAnthropicBaseURL = "https://api.anthropic.com"

	// anthropicVersion pins the messages API version.
	anthropicVersion = "2023-06-01"

	// anthropicMaxTokens bounds the response length. Cleaned-up dictation
	// is never longer than the input by much, so this is generous.
	anthropicMaxTokens = 1024
)

// anthropicClient calls the Anthropic messages API.
type anthropicClient struct {
	apiKey     string
	model      string
	baseURL    string
	prompt     string
	httpClient *http.Client
}

func newAnthropicClient(pc config.ProviderConfig, prompt string, httpClient *http.Client) *anthropicClient {
	baseURL := pc.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &anthropicClient{
		apiKey:     pc.APIKey,
		model:      pc.Model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		prompt:     prompt,
		httpClient: httpClient,
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
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
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *anthropicClient) Optimize(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: anthropicMaxTokens,
		System:    c.prompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := "unknown error"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, msg)
	}

	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("anthropic returned no text content")
}
