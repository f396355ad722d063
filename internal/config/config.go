package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	SecureCookies      bool

	// Logging
	LogLevel  string
	LogFormat string // "console" or "json"

	// Story writer (LLM)
	LLMProvider   string // "groq", "openai" or "gemini"
	GroqKey       string
	GroqModel     string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiKey     string
	GeminiModel   string
	LLMMaxRetries int
	DemoMode      bool // Serve a canned story when no LLM key is configured

	// Narration (TTS)
	TTSProvider       string // "edge", "elevenlabs" or "none"
	EdgeTTSURL        string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	FFmpegTempDir     string
	ChunkThreshold    int
	ChunkSize         int
	TTSParallelism    int

	// Quota
	QuotaStore        string // "memory", "redis" or "postgres"
	MaxStoriesPerDay  int
	RedisURL          string
	DatabaseURL       string
	QuotaRetentionTTL time.Duration

	// Audio storage
	AudioStore            string // "local" or "supabase"
	AudioDir              string
	AudioTTL              time.Duration
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	ttsProvider := strings.ToLower(getEnv("TTS_PROVIDER", "edge"))

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		SecureCookies:         getEnvBool("SECURE_COOKIES", false),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		LLMProvider:           strings.ToLower(getEnv("LLM_PROVIDER", "groq")),
		GroqKey:               getEnv("GROQ_API_KEY", ""),
		GroqModel:             getEnv("GROQ_MODEL", ""),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", ""),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", ""),
		LLMMaxRetries:         getEnvInt("LLM_MAX_RETRIES", 2),
		DemoMode:              getEnvBool("DEMO_MODE", false),
		TTSProvider:           ttsProvider,
		EdgeTTSURL:            getEnv("EDGE_TTS_URL", ""),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:     getEnv("ELEVENLABS_VOICE_ID", ""),
		FFmpegTempDir:         getEnv("FFMPEG_TEMP_DIR", ""),
		ChunkThreshold:        getEnvInt("TTS_CHUNK_THRESHOLD", 5000),
		ChunkSize:             getEnvInt("TTS_CHUNK_SIZE", 2000),
		TTSParallelism:        getEnvInt("TTS_PARALLELISM", defaultTTSParallelism(ttsProvider)),
		QuotaStore:            strings.ToLower(getEnv("QUOTA_STORE", "memory")),
		MaxStoriesPerDay:      getEnvInt("MAX_STORIES_PER_DAY", 10),
		RedisURL:              getEnv("REDIS_URL", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		QuotaRetentionTTL:     time.Duration(getEnvInt("QUOTA_RETENTION_HOURS", 48)) * time.Hour,
		AudioStore:            strings.ToLower(getEnv("AUDIO_STORE", "local")),
		AudioDir:              getEnv("AUDIO_DIR", ""),
		AudioTTL:              time.Duration(getEnvInt("AUDIO_TTL_MINUTES", 60)) * time.Minute,
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "bedtime-stories"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultTTSParallelism is the number of concurrent TTS requests per story.
// The public Edge endpoint throttles concurrent connections from one
// client, so Edge chunks are narrated one at a time unless overridden.
func defaultTTSParallelism(provider string) int {
	if provider == "edge" {
		return 1
	}
	return 3
}

// Validate checks provider selections and the settings each one requires.
// A missing LLM key is not an error: requests fail with a friendly message
// instead, so the UI can still be served.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "groq", "openai", "gemini":
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of groq, openai, gemini (got %q)", c.LLMProvider)
	}

	switch c.TTSProvider {
	case "edge", "none":
	case "elevenlabs":
		if c.ElevenLabsKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY is required when TTS_PROVIDER=elevenlabs")
		}
	default:
		return fmt.Errorf("TTS_PROVIDER must be one of edge, elevenlabs, none (got %q)", c.TTSProvider)
	}

	switch c.QuotaStore {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when QUOTA_STORE=redis")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when QUOTA_STORE=postgres")
		}
	default:
		return fmt.Errorf("QUOTA_STORE must be one of memory, redis, postgres (got %q)", c.QuotaStore)
	}

	switch c.AudioStore {
	case "local":
	case "supabase":
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required when AUDIO_STORE=supabase")
		}
	default:
		return fmt.Errorf("AUDIO_STORE must be one of local, supabase (got %q)", c.AudioStore)
	}

	if c.MaxStoriesPerDay <= 0 {
		return fmt.Errorf("MAX_STORIES_PER_DAY must be positive")
	}
	if c.LLMMaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES must not be negative")
	}
	if c.ChunkSize <= 0 || c.ChunkThreshold <= 0 || c.TTSParallelism <= 0 {
		return fmt.Errorf("TTS_CHUNK_THRESHOLD, TTS_CHUNK_SIZE and TTS_PARALLELISM must be positive")
	}

	return nil
}

// LLMKey returns the API key for the selected provider.
func (c *Config) LLMKey() string {
	switch c.LLMProvider {
	case "openai":
		return c.OpenAIKey
	case "gemini":
		return c.GeminiKey
	default:
		return c.GroqKey
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
