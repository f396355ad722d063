package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// ElevenLabs Text-to-Speech Service
// Uses the ElevenLabs REST API. Each narrator preset maps to a premade
// ElevenLabs voice with a similar accent.
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_multilingual_v2"
	elevenLabsOutputFormat = "mp3_44100_128"

	elevenLabsMinSpeed = 0.7
	elevenLabsMaxSpeed = 1.2
)

// elevenLabsVoices maps narrator keys to premade ElevenLabs voice IDs.
var elevenLabsVoices = map[string]string{
	"warm_female_us":   "21m00Tcm4TlvDq8ikWAM", // Rachel
	"friendly_male_uk": "JBFqnCBsd6RMkjVDRZzb", // George
	"storyteller_au":   "IKne3meq5aSn9XLyUdCD", // Charlie
}

// ElevenLabsService handles text-to-speech via ElevenLabs API.
type ElevenLabsService struct {
	apiKey  string
	voiceID string // overrides the per-preset mapping when set
	modelID string
	baseURL string
	client  *http.Client
}

// Ensure ElevenLabsService implements TTSService at compile time.
var _ TTSService = (*ElevenLabsService)(nil)

// NewElevenLabsService creates an ElevenLabs TTS service. A non-empty voiceID
// is used for every preset.
func NewElevenLabsService(apiKey, voiceID string) *ElevenLabsService {
	return &ElevenLabsService{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: elevenLabsDefaultModel,
		baseURL: elevenLabsBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// WithBaseURL points the service at a different API host.
func (s *ElevenLabsService) WithBaseURL(baseURL string) *ElevenLabsService {
	s.baseURL = baseURL
	return s
}

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
	Speed           float64 `json:"speed,omitempty"`
}

func (s *ElevenLabsService) voiceIDFor(voice Voice) string {
	if s.voiceID != "" {
		return s.voiceID
	}
	if id, ok := elevenLabsVoices[voice.Key]; ok {
		return id
	}
	return elevenLabsVoices[DefaultVoiceKey]
}

func clampSpeed(speed float64) float64 {
	if speed < elevenLabsMinSpeed {
		return elevenLabsMinSpeed
	}
	if speed > elevenLabsMaxSpeed {
		return elevenLabsMaxSpeed
	}
	return speed
}

// GenerateSpeech converts text to speech using ElevenLabs.
func (s *ElevenLabsService) GenerateSpeech(ctx context.Context, text string, voice Voice) (*TTSResponse, error) {
	voiceID := s.voiceIDFor(voice)
	speed := clampSpeed(voice.SpeedMultiplier())

	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       0.70, // calm, even delivery
			SimilarityBoost: 0.80,
			Style:           0.20,
			UseSpeakerBoost: true,
			Speed:           speed,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ElevenLabs request: %w", err)
	}

	// POST /v1/text-to-speech/{voice_id}?output_format=mp3_44100_128
	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		s.baseURL, voiceID, elevenLabsOutputFormat)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.apiKey)

	log.Debug().Str("component", "elevenlabs").Str("voice_id", voiceID).Str("model", s.modelID).
		Int("text_len", len(text)).Float64("speed", speed).Msg("generating speech")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ElevenLabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ElevenLabs returned status %d: %s", resp.StatusCode, string(body))
	}

	// The response body is the audio file.
	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ElevenLabs audio response: %w", err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("ElevenLabs returned empty audio")
	}

	durationMs := estimateAudioDuration(text, speed)

	log.Debug().Str("component", "elevenlabs").Int("bytes", len(audioData)).
		Int("estimated_ms", durationMs).Msg("speech generated")

	return &TTSResponse{
		AudioData:  audioData,
		DurationMs: durationMs,
		Format:     "mp3",
	}, nil
}
