// Package story turns a parent's request into a narrated bedtime story.
package story

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bobarin/storytime/internal/prompts"
	"github.com/bobarin/storytime/internal/quota"
	"github.com/bobarin/storytime/internal/services"
	"github.com/bobarin/storytime/internal/storage"
)

// Request is what the parent filled in.
type Request struct {
	SessionID   string
	ChildName   string
	AgeGroup    string
	Theme       string
	CustomTheme string
	Voice       string
	Language    string
}

// Result is a generated story. Audio is optional: when narration fails the
// story text is still returned with HasAudio false.
type Result struct {
	ID              string
	ChildName       string
	AgeGroup        string
	Theme           string
	Voice           string
	Language        string
	Story           string
	AudioURL        string
	HasAudio        bool
	AudioDurationMs int
	DurationMinutes float64
	DurationText    string
	Status          string
	Quota           *quota.Decision // nil when no limiter is configured
}

// Narrator speaks a story.
type Narrator interface {
	Narrate(ctx context.Context, text string, voice services.Voice) (*services.TTSResponse, error)
}

type Service struct {
	writer   services.StoryWriter
	narrator Narrator
	audio    storage.AudioStore
	limiter  *quota.Limiter
}

// NewService wires the pipeline. narrator, audio and limiter may be nil to
// skip narration, audio storage or quota enforcement.
func NewService(writer services.StoryWriter, narrator Narrator, audio storage.AudioStore, limiter *quota.Limiter) *Service {
	return &Service{
		writer:   writer,
		narrator: narrator,
		audio:    audio,
		limiter:  limiter,
	}
}

// SanitizeName keeps letters, spaces, hyphens and apostrophes.
func SanitizeName(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyName
	}

	hasLetter := false
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
			return r
		case r == ' ' || r == '-' || r == '\'':
			return r
		default:
			return -1
		}
	}, raw)

	if !hasLetter {
		return "", ErrInvalidName
	}
	return strings.Join(strings.Fields(cleaned), " "), nil
}

// ResolveTheme picks the custom theme when theme is prompts.CustomTheme.
func ResolveTheme(theme, customTheme string) (string, error) {
	final := strings.TrimSpace(theme)
	if final == prompts.CustomTheme {
		final = strings.TrimSpace(customTheme)
	}
	if final == "" {
		return "", ErrNoTheme
	}
	return final, nil
}

// Generate validates the request, charges the session's daily quota, writes
// the story and narrates it. A failed write refunds the quota; a failed
// narration is logged and the text is returned without audio.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	name, err := SanitizeName(req.ChildName)
	if err != nil {
		return nil, err
	}
	theme, err := ResolveTheme(req.Theme, req.CustomTheme)
	if err != nil {
		return nil, err
	}

	if req.AgeGroup != "" && !prompts.IsKnownAgeGroup(req.AgeGroup) {
		log.Warn().Str("component", "story").Str("age_group", req.AgeGroup).
			Str("fallback", prompts.DefaultAgeGroup).Msg("unknown age group")
	}
	ageGroup := prompts.AgeGroupFor(req.AgeGroup).Key
	language := req.Language
	if _, ok := prompts.LanguageNames[language]; !ok {
		language = prompts.DefaultLanguage
	}
	voice := services.VoiceFor(req.Voice)

	var decision *quota.Decision
	if s.limiter != nil {
		d, err := s.limiter.Consume(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to check quota: %w", err)
		}
		if !d.Allowed {
			log.Info().Str("component", "story").Str("session", req.SessionID).Msg("daily quota reached")
			return nil, &QuotaError{Message: d.Message}
		}
		decision = &d
	}

	text, err := s.writer.WriteStory(ctx, services.StoryRequest{
		ChildName: name,
		AgeGroup:  ageGroup,
		Theme:     theme,
		Language:  language,
	})
	if err != nil {
		s.refund(req.SessionID)
		return nil, err
	}

	displayName := services.TitleName(name)
	minutes := services.EstimateDurationMinutes(text, services.DefaultWordsPerMinute)

	result := &Result{
		ID:              uuid.NewString(),
		ChildName:       displayName,
		AgeGroup:        ageGroup,
		Theme:           theme,
		Voice:           voice.Key,
		Language:        language,
		Story:           text,
		DurationMinutes: minutes,
		DurationText:    services.FormatDuration(minutes),
		Quota:           decision,
	}
	result.Status = fmt.Sprintf("Story created for %s! Duration: ~%s", displayName, result.DurationText)

	s.narrate(ctx, result, voice)

	log.Info().Str("component", "story").Str("story_id", result.ID).Str("age_group", ageGroup).
		Str("language", language).Bool("audio", result.HasAudio).Msg("story generated")

	return result, nil
}

func (s *Service) narrate(ctx context.Context, result *Result, voice services.Voice) {
	if s.narrator == nil || s.audio == nil {
		return
	}

	speech, err := s.narrator.Narrate(ctx, result.Story, voice)
	if err != nil {
		log.Warn().Err(err).Str("component", "story").Str("story_id", result.ID).
			Msg("narration failed, returning text only")
		return
	}

	url, err := s.audio.Save(ctx, result.ID, speech.AudioData)
	if err != nil {
		log.Warn().Err(err).Str("component", "story").Str("story_id", result.ID).
			Msg("failed to store audio, returning text only")
		return
	}

	result.AudioURL = url
	result.HasAudio = true
	result.AudioDurationMs = speech.DurationMs
}

// refund runs on a fresh context so a cancelled request still gets its
// story back.
func (s *Service) refund(sessionID string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Refund(context.Background(), sessionID); err != nil {
		log.Error().Err(err).Str("component", "story").Str("session", sessionID).Msg("failed to refund quota")
	}
}

// Audio returns the stored MP3 for a story.
func (s *Service) Audio(ctx context.Context, id string) ([]byte, error) {
	if s.audio == nil {
		return nil, storage.ErrNotFound
	}
	return s.audio.Open(ctx, id)
}
