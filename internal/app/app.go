// Package app builds the story pipeline from configuration. Both the HTTP
// server and the CLI start here.
package app

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bobarin/storytime/internal/config"
	"github.com/bobarin/storytime/internal/db"
	"github.com/bobarin/storytime/internal/quota"
	"github.com/bobarin/storytime/internal/services"
	"github.com/bobarin/storytime/internal/storage"
	"github.com/bobarin/storytime/internal/story"
)

const maintenanceInterval = 10 * time.Minute

type App struct {
	Config  *config.Config
	Stories *story.Service
	Limiter *quota.Limiter
	Audio   storage.AudioStore
	FFmpeg  *services.FFmpegService // nil when ffmpeg is not installed

	audioSweeper storage.Sweeper
	quotaStore   quota.Store
	staleQuotas  *db.QuotaStore
}

// Build connects the configured providers and stores.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	store, err := a.buildQuotaStore(ctx)
	if err != nil {
		return nil, err
	}
	a.quotaStore = store
	a.Limiter = quota.NewLimiter(store, cfg.MaxStoriesPerDay)

	if err := a.buildAudioStore(); err != nil {
		a.Close()
		return nil, err
	}

	if _, err := exec.LookPath("ffmpeg"); err == nil {
		ff, err := services.NewFFmpegService(cfg.FFmpegTempDir)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.FFmpeg = ff
	} else {
		log.Warn().Str("component", "app").Msg("ffmpeg not found, long stories are narrated in a single request")
	}

	a.Stories = story.NewService(newWriter(cfg), a.newNarrator(), a.Audio, a.Limiter)

	return a, nil
}

func (a *App) buildQuotaStore(ctx context.Context) (quota.Store, error) {
	cfg := a.Config

	switch cfg.QuotaStore {
	case "redis":
		store, err := quota.NewRedisStore(cfg.RedisURL, cfg.QuotaRetentionTTL)
		if err != nil {
			return nil, err
		}
		log.Info().Str("component", "app").Msg("quota store: redis")
		return store, nil

	case "postgres":
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, err
		}
		store := db.NewQuotaStore(database)
		a.staleQuotas = store
		log.Info().Str("component", "app").Msg("quota store: postgres")
		return store, nil

	default:
		log.Info().Str("component", "app").Msg("quota store: memory (per process)")
		return quota.NewMemoryStore(), nil
	}
}

func (a *App) buildAudioStore() error {
	cfg := a.Config

	switch cfg.AudioStore {
	case "supabase":
		remote := storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket, cfg.AudioTTL)
		a.audioSweeper = remote
		a.Audio = remote
		log.Info().Str("component", "app").Str("bucket", cfg.SupabaseStorageBucket).Msg("audio store: supabase")
	default:
		local, err := storage.NewLocalStore(cfg.AudioDir)
		if err != nil {
			return err
		}
		a.audioSweeper = local
		a.Audio = local
		log.Info().Str("component", "app").Msg("audio store: local")
	}
	return nil
}

func newWriter(cfg *config.Config) services.StoryWriter {
	key := cfg.LLMKey()
	if key == "" {
		if cfg.DemoMode {
			log.Warn().Str("component", "app").Msg("no LLM key configured, serving demo stories")
			return services.DemoStoryWriter{}
		}
		log.Warn().Str("component", "app").Str("provider", cfg.LLMProvider).
			Msg("no LLM key configured, story requests will fail")
		return services.NewUnavailableWriter()
	}

	switch cfg.LLMProvider {
	case "openai":
		return services.NewOpenAIStoryWriter(key, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.LLMMaxRetries)
	case "gemini":
		return services.NewGeminiStoryWriter(key, cfg.GeminiModel, cfg.LLMMaxRetries)
	default:
		return services.NewGroqStoryWriter(key, cfg.GroqModel, cfg.LLMMaxRetries)
	}
}

// newNarrator returns nil when narration is disabled. The story.Narrator
// interface must stay nil in that case, not hold a nil pointer.
func (a *App) newNarrator() story.Narrator {
	cfg := a.Config

	var tts services.TTSService
	switch cfg.TTSProvider {
	case "none":
		log.Info().Str("component", "app").Msg("narration disabled")
		return nil
	case "elevenlabs":
		tts = services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
	default:
		tts = services.NewEdgeTTSService(cfg.EdgeTTSURL)
	}
	log.Info().Str("component", "app").Str("provider", cfg.TTSProvider).Msg("narration enabled")

	var concat services.AudioConcatenator
	if a.FFmpeg != nil {
		concat = a.FFmpeg
	}

	return services.NewNarrator(tts, concat, services.NarratorOptions{
		ChunkThreshold: cfg.ChunkThreshold,
		ChunkSize:      cfg.ChunkSize,
		Parallelism:    cfg.TTSParallelism,
	})
}

// RunMaintenance removes expired audio and stale quota rows until ctx is
// done.
func (a *App) RunMaintenance(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.maintain(ctx, now)
		}
	}
}

func (a *App) maintain(ctx context.Context, now time.Time) {
	if a.audioSweeper != nil {
		n, err := a.audioSweeper.Sweep(ctx, now, a.Config.AudioTTL)
		if err != nil {
			log.Error().Err(err).Str("component", "app").Msg("audio sweep failed")
		} else if n > 0 {
			log.Info().Str("component", "app").Int("removed", n).Msg("expired audio removed")
		}
	}

	if a.staleQuotas != nil {
		n, err := a.staleQuotas.DeleteStale(ctx, now.Add(-a.Config.QuotaRetentionTTL))
		if err != nil {
			log.Error().Err(err).Str("component", "app").Msg("quota cleanup failed")
		} else if n > 0 {
			log.Info().Str("component", "app").Int64("removed", n).Msg("stale quotas removed")
		}
	}
}

// Close releases the quota store connection.
func (a *App) Close() error {
	if a.quotaStore == nil {
		return nil
	}
	if err := a.quotaStore.Close(); err != nil {
		return fmt.Errorf("failed to close quota store: %w", err)
	}
	return nil
}
