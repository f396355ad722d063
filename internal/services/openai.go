package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// GroqBaseURL is Groq's OpenAI-compatible endpoint.
	GroqBaseURL      = "https://api.groq.com/openai/v1"
	GroqDefaultModel = "llama-3.3-70b-versatile"

	OpenAIDefaultModel = "gpt-4o-mini"
)

// OpenAIStoryWriter writes stories through any OpenAI-compatible chat
// completion API. Groq is the default.
type OpenAIStoryWriter struct {
	client     *openai.Client
	model      string
	maxRetries int
	provider   string
}

var _ StoryWriter = (*OpenAIStoryWriter)(nil)

// NewOpenAIStoryWriter creates a writer. An empty baseURL keeps the
// library's default (api.openai.com).
func NewOpenAIStoryWriter(apiKey, baseURL, model string, maxRetries int) *OpenAIStoryWriter {
	cfg := openai.DefaultConfig(apiKey)
	provider := "openai"
	if baseURL != "" {
		cfg.BaseURL = baseURL
		if baseURL == GroqBaseURL {
			provider = "groq"
		}
	}
	if model == "" {
		model = OpenAIDefaultModel
		if provider == "groq" {
			model = GroqDefaultModel
		}
	}

	return &OpenAIStoryWriter{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		maxRetries: maxRetries,
		provider:   provider,
	}
}

// NewGroqStoryWriter creates a writer for Groq's hosted Llama models.
func NewGroqStoryWriter(apiKey, model string, maxRetries int) *OpenAIStoryWriter {
	return NewOpenAIStoryWriter(apiKey, GroqBaseURL, model, maxRetries)
}

// WriteStory generates a validated story, retrying on failure.
func (w *OpenAIStoryWriter) WriteStory(ctx context.Context, req StoryRequest) (string, error) {
	return writeWithRetry(ctx, w.provider, w.maxRetries, req, w.complete)
}

func (w *OpenAIStoryWriter) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := w.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: w.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		Temperature: storyTemperature,
		TopP:        storyTopP,
		MaxTokens:   storyMaxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusUnauthorized {
			return "", fmt.Errorf("%s rejected the API key: %w", w.provider, ErrMissingAPIKey)
		}
		return "", fmt.Errorf("%s request failed: %w", w.provider, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", w.provider)
	}

	return resp.Choices[0].Message.Content, nil
}
