package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Duye0120/AirVoice/internal/config"
)

// googleClient calls the Google Gemini API through the official SDK.
type googleClient struct {
	apiKey string
	model  string
	prompt string
}

func newGoogleClient(pc config.ProviderConfig, prompt string) *googleClient {
	return &googleClient{
		apiKey: pc.APIKey,
		model:  pc.Model,
		prompt: prompt,
	}
}

func (c *googleClient) Optimize(ctx context.Context, text string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return "", fmt.Errorf("create genai client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(c.prompt)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}

	var out strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				out.WriteString(string(txt))
			}
		}
	}

	if out.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text content")
	}

	return out.String(), nil
}
