package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/bobarin/storytime/internal/prompts"
)

const (
	// DefaultMaxRetries is the number of extra attempts after the first.
	DefaultMaxRetries = 2

	// DefaultWordsPerMinute is a calm read-aloud pace for children's stories.
	DefaultWordsPerMinute = 130

	minStoryRunes = 200

	storyTemperature = 0.8
	storyTopP        = 0.9
	storyMaxTokens   = 4000
)

var (
	// ErrMissingAPIKey is returned by writers constructed without credentials.
	ErrMissingAPIKey = errors.New("story writer API key is not configured")
	// ErrEmptyChildName is returned when the name is blank after cleaning.
	ErrEmptyChildName = errors.New("child's name cannot be empty")
	// ErrStoryTooShort and ErrStoryMissingName reject an unusable completion.
	ErrStoryTooShort    = errors.New("generated story is too short")
	ErrStoryMissingName = errors.New("story doesn't include child's name")
)

// StoryRequest carries the personalisation for one story.
type StoryRequest struct {
	ChildName string
	AgeGroup  string
	Theme     string
	Language  string
}

// StoryWriter turns a StoryRequest into story text.
type StoryWriter interface {
	WriteStory(ctx context.Context, req StoryRequest) (string, error)
}

// completionFunc performs a single LLM call with a system and user prompt.
type completionFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// writeWithRetry builds the prompts and calls complete up to maxRetries+1
// times, accepting the first story that passes validation.
func writeWithRetry(ctx context.Context, provider string, maxRetries int, req StoryRequest, complete completionFunc) (string, error) {
	name := TitleName(strings.TrimSpace(req.ChildName))
	if name == "" {
		return "", ErrEmptyChildName
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	systemPrompt := prompts.SystemPrompt()
	userPrompt := prompts.StoryPrompt(name, req.AgeGroup, req.Theme, req.Language)

	attempts := maxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		story, err := complete(ctx, systemPrompt, userPrompt)
		if err == nil {
			story = strings.TrimSpace(story)
			err = validateStory(story, name)
		}
		if err == nil {
			log.Info().Str("component", provider).Int("attempt", attempt).
				Int("chars", utf8.RuneCountInString(story)).Msg("story generated")
			return story, nil
		}

		lastErr = err
		if errors.Is(err, ErrMissingAPIKey) || ctx.Err() != nil {
			break
		}

		log.Warn().Err(err).Str("component", provider).Int("attempt", attempt).
			Int("max_attempts", attempts).Msg("story attempt failed")
	}

	if errors.Is(lastErr, ErrMissingAPIKey) {
		return "", lastErr
	}
	return "", fmt.Errorf("failed to generate story after %d attempts: %w", attempts, lastErr)
}

func validateStory(story, childName string) error {
	if utf8.RuneCountInString(story) < minStoryRunes {
		return ErrStoryTooShort
	}
	if !strings.Contains(strings.ToLower(story), strings.ToLower(childName)) {
		return ErrStoryMissingName
	}
	return nil
}

// TitleName upper-cases the first letter of every word and lower-cases the
// rest, so "mary-jane o'neil" becomes "Mary-Jane O'Neil".
func TitleName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	prevLetter := false
	for _, r := range name {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}

	return b.String()
}

// EstimateDurationMinutes approximates read-aloud time from the word count.
func EstimateDurationMinutes(text string, wordsPerMinute int) float64 {
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}
	return float64(len(strings.Fields(text))) / float64(wordsPerMinute)
}

// FormatDuration renders minutes as "M min S sec".
func FormatDuration(minutes float64) string {
	whole, frac := math.Modf(minutes)
	return fmt.Sprintf("%d min %d sec", int(whole), int(frac*60))
}

// unavailableWriter stands in when no provider is configured.
type unavailableWriter struct{}

// NewUnavailableWriter returns a writer whose every call fails with ErrMissingAPIKey.
func NewUnavailableWriter() StoryWriter {
	return unavailableWriter{}
}

func (unavailableWriter) WriteStory(ctx context.Context, req StoryRequest) (string, error) {
	return "", ErrMissingAPIKey
}
