package services

import (
	"context"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// TTSService is the common interface for text-to-speech providers.
// Implemented by Edge and ElevenLabs.
// ---------------------------------------------------------------------------

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData  []byte
	DurationMs int
	Format     string // "mp3"
}

// TTSService is the interface that any TTS provider must implement.
type TTSService interface {
	// GenerateSpeech converts text to audio spoken with the given voice.
	GenerateSpeech(ctx context.Context, text string, voice Voice) (*TTSResponse, error)
}

// Voice is a narrator preset: a neural voice plus prosody tuning.
type Voice struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	VoiceName string `json:"voice_name"` // Edge short name, e.g. en-US-JennyNeural
	Rate      string `json:"rate"`       // relative speaking rate, e.g. "-10%"
	Pitch     string `json:"pitch"`      // relative pitch, e.g. "+0Hz"
}

// DefaultVoiceKey is used when an unknown voice key is requested.
const DefaultVoiceKey = "warm_female_us"

// Voices lists the narrator presets in display order. Bedtime voices run a
// little slower than normal speech.
var Voices = []Voice{
	{
		Key:       "warm_female_us",
		Label:     "Warm Female (US)",
		VoiceName: "en-US-JennyNeural",
		Rate:      "-10%",
		Pitch:     "+0Hz",
	},
	{
		Key:       "friendly_male_uk",
		Label:     "Friendly Male (UK)",
		VoiceName: "en-GB-RyanNeural",
		Rate:      "-10%",
		Pitch:     "+0Hz",
	},
	{
		Key:       "storyteller_au",
		Label:     "Storyteller (AU)",
		VoiceName: "en-AU-WilliamNeural",
		Rate:      "-15%",
		Pitch:     "-5Hz",
	},
}

// VoiceFor returns the preset for key, falling back to DefaultVoiceKey.
func VoiceFor(key string) Voice {
	for _, v := range Voices {
		if v.Key == key {
			return v
		}
	}
	for _, v := range Voices {
		if v.Key == DefaultVoiceKey {
			return v
		}
	}
	return Voices[0]
}

// SpeedMultiplier converts a relative rate such as "-10%" into a speed
// factor (0.9). Malformed rates yield 1.0.
func (v Voice) SpeedMultiplier() float64 {
	rate := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v.Rate), "%"))
	if rate == "" {
		return 1.0
	}
	pct, err := strconv.ParseFloat(rate, 64)
	if err != nil {
		return 1.0
	}
	return 1.0 + pct/100.0
}

// estimateAudioDuration approximates spoken length in milliseconds from the
// word count, for providers that do not report it.
func estimateAudioDuration(text string, speed float64) int {
	if speed <= 0 {
		speed = 1.0
	}
	words := len(strings.Fields(text))
	minutes := float64(words) / (DefaultWordsPerMinute * speed)
	return int(minutes * 60 * 1000)
}
