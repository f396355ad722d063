package services

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const GeminiDefaultModel = "gemini-2.5-flash"

// GeminiStoryWriter writes stories with Google's Gemini API.
type GeminiStoryWriter struct {
	apiKey     string
	model      string
	maxRetries int
}

var _ StoryWriter = (*GeminiStoryWriter)(nil)

func NewGeminiStoryWriter(apiKey, model string, maxRetries int) *GeminiStoryWriter {
	if model == "" {
		model = GeminiDefaultModel
	}
	return &GeminiStoryWriter{
		apiKey:     apiKey,
		model:      model,
		maxRetries: maxRetries,
	}
}

// WriteStory generates a validated story, retrying on failure.
func (w *GeminiStoryWriter) WriteStory(ctx context.Context, req StoryRequest) (string, error) {
	if w.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  w.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}

	complete := func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		config := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr[float32](storyTemperature),
			TopP:              genai.Ptr[float32](storyTopP),
			MaxOutputTokens:   storyMaxTokens,
		}

		resp, err := client.Models.GenerateContent(ctx, w.model, genai.Text(userPrompt), config)
		if err != nil {
			return "", fmt.Errorf("gemini request failed: %w", err)
		}

		text := resp.Text()
		if text == "" {
			return "", fmt.Errorf("no response from gemini")
		}
		return text, nil
	}

	return writeWithRetry(ctx, "gemini", w.maxRetries, req, complete)
}
