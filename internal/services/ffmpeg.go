package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// FFmpegService
// Joins narrated chunks into a single MP3 and probes audio durations.
// Requires ffmpeg and ffprobe on PATH.
// ---------------------------------------------------------------------------

const concatBitrate = "192k"

type FFmpegService struct {
	tempDir string
}

var _ AudioConcatenator = (*FFmpegService)(nil)

func NewFFmpegService(tempDir string) (*FFmpegService, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "storytime")
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	return &FFmpegService{
		tempDir: tempDir,
	}, nil
}

// ConcatenateAudio joins audio files in the given order and re-encodes the
// result as MP3 so segments with differing encoder settings play cleanly.
func (s *FFmpegService) ConcatenateAudio(ctx context.Context, audioPaths []string, outputPath string) error {
	if len(audioPaths) == 0 {
		return fmt.Errorf("no audio to concatenate")
	}

	list, err := os.CreateTemp(s.tempDir, "concat_*.txt")
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	listPath := list.Name()
	defer os.Remove(listPath)

	for _, path := range audioPaths {
		abs, err := filepath.Abs(path)
		if err != nil {
			list.Close()
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		// FFmpeg concat format
		fmt.Fprintf(list, "file '%s'\n", escapeConcatPath(abs))
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:a", "libmp3lame",
		"-b:a", concatBitrate,
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	log.Debug().Str("component", "ffmpeg").Int("segments", len(audioPaths)).Str("output", outputPath).
		Msg("audio concatenated")

	return nil
}

// Concatenate writes each MP3 segment to a scratch directory, joins them in
// order and returns the combined audio. Scratch files are always removed.
func (s *FFmpegService) Concatenate(ctx context.Context, segments [][]byte) ([]byte, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no audio to concatenate")
	}

	workDir, err := os.MkdirTemp(s.tempDir, "narration_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	paths := make([]string, len(segments))
	for i, data := range segments {
		paths[i] = filepath.Join(workDir, fmt.Sprintf("chunk_%03d.mp3", i))
		if err := os.WriteFile(paths[i], data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write chunk %d: %w", i, err)
		}
	}

	outputPath := filepath.Join(workDir, "combined.mp3")
	if err := s.ConcatenateAudio(ctx, paths, outputPath); err != nil {
		return nil, err
	}

	combined, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read combined audio: %w", err)
	}

	return combined, nil
}

// GetAudioDuration returns the duration of an audio file in milliseconds
func (s *FFmpegService) GetAudioDuration(ctx context.Context, audioPath string) (int, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeDuration(string(output))
}

func parseProbeDuration(output string) (int, error) {
	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(output), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return int(durationSec * 1000), nil
}

// escapeConcatPath quotes a path for a single-quoted concat list entry.
func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}
