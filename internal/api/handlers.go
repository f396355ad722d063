package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bobarin/storytime/internal/models"
	"github.com/bobarin/storytime/internal/prompts"
	"github.com/bobarin/storytime/internal/quota"
	"github.com/bobarin/storytime/internal/services"
	"github.com/bobarin/storytime/internal/storage"
	"github.com/bobarin/storytime/internal/story"
)

const maxRequestBytes = 64 << 10

type Handler struct {
	stories *story.Service
	limiter *quota.Limiter
}

// NewHandler creates the API handlers. limiter may be nil when quotas are
// not enforced.
func NewHandler(stories *story.Service, limiter *quota.Limiter) *Handler {
	return &Handler{
		stories: stories,
		limiter: limiter,
	}
}

// CreateStory handles POST /v1/stories
// Accepts JSON or a form post with the same field names.
func (h *Handler) CreateStory(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	req, err := decodeCreateStory(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.stories.Generate(r.Context(), story.Request{
		SessionID:   SessionID(r.Context()),
		ChildName:   req.ChildName,
		AgeGroup:    deref(req.AgeGroup),
		Theme:       req.Theme,
		CustomTheme: deref(req.CustomTheme),
		Voice:       deref(req.Voice),
		Language:    deref(req.Language),
	})
	if err != nil {
		respondStoryError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.buildStoryResponse(res))
}

func decodeCreateStory(r *http.Request) (models.CreateStoryRequest, error) {
	var req models.CreateStoryRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		req.ChildName = r.FormValue("child_name")
		req.Theme = r.FormValue("theme")
		req.AgeGroup = optional(r.FormValue("age_group"))
		req.CustomTheme = optional(r.FormValue("custom_theme"))
		req.Voice = optional(r.FormValue("voice"))
		req.Language = optional(r.FormValue("language"))
		return req, nil
	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}
}

func respondStoryError(w http.ResponseWriter, r *http.Request, err error) {
	message := story.UserMessage(err)

	switch {
	case story.IsUserError(err):
		respondError(w, http.StatusBadRequest, message)
	case errors.Is(err, story.ErrQuotaExceeded):
		respondError(w, http.StatusTooManyRequests, message)
	case errors.Is(err, services.ErrMissingAPIKey):
		respondError(w, http.StatusServiceUnavailable, message)
	default:
		log.Error().Err(err).Str("component", "api").Str("session", SessionID(r.Context())).
			Msg("story generation failed")
		respondError(w, http.StatusInternalServerError, message)
	}
}

func (h *Handler) buildStoryResponse(res *story.Result) models.StoryResponse {
	response := models.StoryResponse{
		ID:              res.ID,
		ChildName:       res.ChildName,
		AgeGroup:        res.AgeGroup,
		Theme:           res.Theme,
		Voice:           res.Voice,
		Language:        res.Language,
		Story:           res.Story,
		State:           models.StoryStateTextOnly,
		DurationMinutes: res.DurationMinutes,
		DurationText:    res.DurationText,
		Status:          res.Status,
		CreatedAt:       time.Now().UTC(),
	}

	if res.HasAudio {
		response.State = models.StoryStateNarrated
		url := res.AudioURL
		response.AudioURL = &url
		ms := res.AudioDurationMs
		response.AudioDurationMs = &ms
	}

	if res.Quota != nil && h.limiter != nil {
		response.Quota = &models.QuotaResponse{
			Limit:     h.limiter.Max(),
			Remaining: res.Quota.Remaining,
			Message:   res.Quota.Message,
		}
	}

	return response
}

// GetStoryAudio handles GET /v1/stories/{id}/audio
func (h *Handler) GetStoryAudio(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid story ID")
		return
	}

	data, err := h.stories.Audio(r.Context(), id.String())
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Audio not found or expired")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("component", "api").Str("story_id", id.String()).Msg("failed to load audio")
		respondError(w, http.StatusInternalServerError, "Failed to load audio")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="bedtime-story-%s.mp3"`, id))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}

// GetQuota handles GET /v1/quota
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	if h.limiter == nil {
		respondError(w, http.StatusNotFound, "Quotas are not enabled")
		return
	}

	remaining, message, err := h.limiter.Status(r.Context(), SessionID(r.Context()))
	if err != nil {
		log.Error().Err(err).Str("component", "api").Msg("failed to read quota")
		respondError(w, http.StatusInternalServerError, "Failed to read quota")
		return
	}

	respondJSON(w, http.StatusOK, models.QuotaResponse{
		Limit:     h.limiter.Max(),
		Remaining: remaining,
		Message:   message,
	})
}

// GetOptions handles GET /v1/options
// Returns the choices offered by the story form.
func (h *Handler) GetOptions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, BuildOptions())
}

// BuildOptions collects the age groups, themes, voices and languages.
func BuildOptions() models.OptionsResponse {
	ageGroups := make([]models.AgeGroupOption, 0, len(prompts.AgeGroups))
	for _, g := range prompts.AgeGroups {
		ageGroups = append(ageGroups, models.AgeGroupOption{
			Option:    models.Option{Value: g.Key, Label: g.Label},
			Duration:  g.Duration,
			WordCount: g.WordCount,
		})
	}

	voices := make([]models.Option, 0, len(services.Voices))
	for _, v := range services.Voices {
		voices = append(voices, models.Option{Value: v.Key, Label: v.Label})
	}

	codes := prompts.LanguageCodes()
	languages := make([]models.Option, 0, len(codes))
	for _, code := range codes {
		languages = append(languages, models.Option{Value: code, Label: prompts.LanguageName(code)})
	}

	return models.OptionsResponse{
		AgeGroups:       ageGroups,
		Themes:          append([]string(nil), prompts.Themes...),
		CustomTheme:     prompts.CustomTheme,
		Voices:          voices,
		Languages:       languages,
		DefaultAgeGroup: prompts.DefaultAgeGroup,
		DefaultVoice:    services.DefaultVoiceKey,
		DefaultLanguage: prompts.DefaultLanguage,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
