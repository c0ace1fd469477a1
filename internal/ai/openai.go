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

// defaultOpenAIBaseURL is the standard OpenAI API endpoint.
// A custom baseURL allows OpenAI-compatible proxies and local gateways.
const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// openaiClient calls the OpenAI chat completions API.
type openaiClient struct {
	apiKey     string
	model      string
	baseURL    string
	prompt     string
	httpClient *http.Client
}

func newOpenAIClient(pc config.ProviderConfig, prompt string, httpClient *http.Client) *openaiClient {
	baseURL := pc.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &openaiClient{
		apiKey:     pc.APIKey,
		model:      pc.Model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		prompt:     prompt,
		httpClient: httpClient,
	}
}

type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *openaiClient) Optimize(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(openaiRequest{
		Model: c.model,
		Messages: []openaiMessage{
			{Role: "system", Content: c.prompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed openaiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := "unknown error"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("openai returned status %d: %s", resp.StatusCode, msg)
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
