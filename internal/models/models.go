package models

import "time"

// Enums
type StoryState string

const (
	StoryStateNarrated StoryState = "narrated"  // text and audio
	StoryStateTextOnly StoryState = "text_only" // narration failed or is disabled
)

// DTOs for API requests and responses

type CreateStoryRequest struct {
	ChildName   string  `json:"child_name"`
	AgeGroup    *string `json:"age_group,omitempty"`    // Default: "preschool"
	Theme       string  `json:"theme"`                  // A preset theme, or "Custom"
	CustomTheme *string `json:"custom_theme,omitempty"` // Used when Theme is "Custom"
	Voice       *string `json:"voice,omitempty"`        // Default: "warm_female_us"
	Language    *string `json:"language,omitempty"`     // ISO 639-1, default: "en"
}

type StoryResponse struct {
	ID              string         `json:"id"`
	ChildName       string         `json:"child_name"`
	AgeGroup        string         `json:"age_group"`
	Theme           string         `json:"theme"`
	Voice           string         `json:"voice"`
	Language        string         `json:"language"`
	Story           string         `json:"story"`
	State           StoryState     `json:"state"`
	AudioURL        *string        `json:"audio_url,omitempty"`
	AudioDurationMs *int           `json:"audio_duration_ms,omitempty"`
	DurationMinutes float64        `json:"duration_minutes"`
	DurationText    string         `json:"duration_text"` // e.g. "6 min 9 sec"
	Status          string         `json:"status"`
	Quota           *QuotaResponse `json:"quota,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

type QuotaResponse struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message"`
}

// Option is a selectable value with its display label.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type AgeGroupOption struct {
	Option
	Duration  string `json:"duration"`
	WordCount int    `json:"word_count"`
}

// OptionsResponse lists everything the story form offers.
type OptionsResponse struct {
	AgeGroups       []AgeGroupOption `json:"age_groups"`
	Themes          []string         `json:"themes"`
	CustomTheme     string           `json:"custom_theme"`
	Voices          []Option         `json:"voices"`
	Languages       []Option         `json:"languages"`
	DefaultAgeGroup string           `json:"default_age_group"`
	DefaultVoice    string           `json:"default_voice"`
	DefaultLanguage string           `json:"default_language"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
