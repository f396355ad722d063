package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goodStory(name string) string {
	return "Once upon a time " + name + " found a tiny boat made of moonlight. " +
		strings.Repeat(name+" sailed gently across a sea of sleepy stars. ", 6) +
		"And then " + name + " fell fast asleep."
}

// newChatServer fakes an OpenAI-compatible /chat/completions endpoint that
// answers with replies[i] on the i-th call (the last reply repeats).
func newChatServer(t *testing.T, replies ...string) (*httptest.Server, *int32) {
	t.Helper()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var req struct {
			Model       string  `json:"model"`
			Temperature float32 `json:"temperature"`
			TopP        float32 `json:"top_p"`
			MaxTokens   int     `json:"max_tokens"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.MaxTokens != 4000 {
			t.Errorf("max_tokens = %d", req.MaxTokens)
		}

		n := int(atomic.AddInt32(&calls, 1))
		reply := replies[len(replies)-1]
		if n <= len(replies) {
			reply = replies[n-1]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	}))
	t.Cleanup(srv.Close)

	return srv, &calls
}

func TestOpenAIStoryWriterSuccess(t *testing.T) {
	t.Parallel()

	srv, calls := newChatServer(t, "  "+goodStory("Emma")+"\n")
	w := NewOpenAIStoryWriter("test-key", srv.URL, "llama-test", 2)

	story, err := w.WriteStory(context.Background(), StoryRequest{
		ChildName: "emma", AgeGroup: "toddler", Theme: "Space Adventure", Language: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, goodStory("Emma"), story)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestOpenAIStoryWriterRetriesUntilValid(t *testing.T) {
	t.Parallel()

	srv, calls := newChatServer(t, "Too short.", strings.Repeat("A story about nobody in particular. ", 10), goodStory("Noah"))
	w := NewOpenAIStoryWriter("test-key", srv.URL, "llama-test", 2)

	story, err := w.WriteStory(context.Background(), StoryRequest{ChildName: "Noah", Theme: "Superheroes"})
	require.NoError(t, err)
	assert.Contains(t, story, "Noah")
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestOpenAIStoryWriterGivesUp(t *testing.T) {
	t.Parallel()

	srv, calls := newChatServer(t, "Too short.")
	w := NewOpenAIStoryWriter("test-key", srv.URL, "llama-test", 2)

	_, err := w.WriteStory(context.Background(), StoryRequest{ChildName: "Mia", Theme: "Underwater World"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoryTooShort)
	assert.Contains(t, err.Error(), "failed to generate story after 3 attempts")
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestOpenAIStoryWriterUnauthorized(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	w := NewOpenAIStoryWriter("bad-key", srv.URL, "llama-test", 2)
	_, err := w.WriteStory(context.Background(), StoryRequest{ChildName: "Mia", Theme: "Superheroes"})

	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "credential errors are not retried")
}

func TestOpenAIStoryWriterEmptyName(t *testing.T) {
	t.Parallel()

	w := NewOpenAIStoryWriter("test-key", "http://127.0.0.1:1", "", 2)
	_, err := w.WriteStory(context.Background(), StoryRequest{ChildName: "   "})
	assert.ErrorIs(t, err, ErrEmptyChildName)
}

func TestNewOpenAIStoryWriterDefaults(t *testing.T) {
	t.Parallel()

	groq := NewGroqStoryWriter("k", "", 2)
	assert.Equal(t, GroqDefaultModel, groq.model)
	assert.Equal(t, "groq", groq.provider)

	openaiWriter := NewOpenAIStoryWriter("k", "", "", 2)
	assert.Equal(t, OpenAIDefaultModel, openaiWriter.model)
	assert.Equal(t, "openai", openaiWriter.provider)
}

func TestGeminiStoryWriterRequiresKey(t *testing.T) {
	t.Parallel()

	w := NewGeminiStoryWriter("", "", 2)
	assert.Equal(t, GeminiDefaultModel, w.model)

	_, err := w.WriteStory(context.Background(), StoryRequest{ChildName: "Ava"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestUnavailableWriter(t *testing.T) {
	t.Parallel()

	_, err := NewUnavailableWriter().WriteStory(context.Background(), StoryRequest{ChildName: "Ava"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestDemoStoryWriter(t *testing.T) {
	t.Parallel()

	story, err := DemoStoryWriter{}.WriteStory(context.Background(), StoryRequest{
		ChildName: "oliver", Theme: "Dinosaur Discovery",
	})
	require.NoError(t, err)
	assert.NoError(t, validateStory(story, "Oliver"))
	assert.Contains(t, story, "Dinosaur Discovery")

	_, err = DemoStoryWriter{}.WriteStory(context.Background(), StoryRequest{})
	assert.ErrorIs(t, err, ErrEmptyChildName)
}

func TestValidateStory(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, validateStory("short", "Emma"), ErrStoryTooShort)
	assert.ErrorIs(t, validateStory(strings.Repeat("x", 250), "Emma"), ErrStoryMissingName)
	assert.NoError(t, validateStory(strings.Repeat("x", 250)+" EMMA", "Emma"))
}

func TestTitleName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"emma":       "Emma",
		"MARY-JANE":  "Mary-Jane",
		"o'neil":     "O'Neil",
		"anna maria": "Anna Maria",
		"éloïse":     "Éloïse",
		"":           "",
		"jean  luc":  "Jean  Luc",
	}

	for in, want := range tests {
		assert.Equal(t, want, TitleName(in), "TitleName(%q)", in)
	}
}

func TestEstimateAndFormatDuration(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("word ", 195)
	minutes := EstimateDurationMinutes(text, DefaultWordsPerMinute)
	assert.InDelta(t, 1.5, minutes, 1e-9)
	assert.Equal(t, "1 min 30 sec", FormatDuration(minutes))

	assert.Equal(t, "0 min 0 sec", FormatDuration(EstimateDurationMinutes("", 0)))
	assert.Equal(t, "6 min 9 sec", FormatDuration(800.0/130.0))
}
