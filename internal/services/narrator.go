package services

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkThreshold = 5000
	DefaultChunkSize      = 2000
	DefaultParallelism    = 3
)

// AudioConcatenator joins MP3 segments in order.
type AudioConcatenator interface {
	Concatenate(ctx context.Context, segments [][]byte) ([]byte, error)
}

// NarratorOptions tunes when and how long text is split.
type NarratorOptions struct {
	ChunkThreshold int // text longer than this many characters is chunked
	ChunkSize      int // target characters per chunk
	Parallelism    int // concurrent TTS calls per story
}

// Narrator turns a story into a single MP3. Short stories go to the TTS
// provider in one call; long ones are split at sentence boundaries,
// synthesized concurrently and stitched back together in order.
type Narrator struct {
	tts    TTSService
	concat AudioConcatenator
	opts   NarratorOptions
}

func NewNarrator(tts TTSService, concat AudioConcatenator, opts NarratorOptions) *Narrator {
	if opts.ChunkThreshold <= 0 {
		opts.ChunkThreshold = DefaultChunkThreshold
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	return &Narrator{tts: tts, concat: concat, opts: opts}
}

// Narrate speaks text with voice.
func (n *Narrator) Narrate(ctx context.Context, text string, voice Voice) (*TTSResponse, error) {
	if utf8.RuneCountInString(text) <= n.opts.ChunkThreshold {
		return n.tts.GenerateSpeech(ctx, text, voice)
	}

	chunks := SplitIntoChunks(text, n.opts.ChunkSize)
	if len(chunks) == 1 || n.concat == nil {
		return n.tts.GenerateSpeech(ctx, text, voice)
	}

	log.Info().Str("component", "narrator").Int("chunks", len(chunks)).Str("voice", voice.Key).
		Msg("narrating in chunks")

	segments := make([][]byte, len(chunks))
	durations := make([]int, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.opts.Parallelism)

	for i, chunk := range chunks {
		g.Go(func() error {
			resp, err := n.tts.GenerateSpeech(gctx, chunk, voice)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			segments[i] = resp.AudioData
			durations[i] = resp.DurationMs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined, err := n.concat.Concatenate(ctx, segments)
	if err != nil {
		return nil, fmt.Errorf("failed to join narrated chunks: %w", err)
	}

	total := 0
	for _, d := range durations {
		total += d
	}

	return &TTSResponse{
		AudioData:  combined,
		DurationMs: total,
		Format:     "mp3",
	}, nil
}
