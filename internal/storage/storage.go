// Package storage keeps narrated story audio until the listener fetches it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const audioContentType = "audio/mpeg"

var (
	// ErrNotFound is returned when no audio exists for a story ID.
	ErrNotFound = errors.New("audio not found")
	// ErrInvalidID is returned for story IDs that are not UUIDs.
	ErrInvalidID = errors.New("invalid story id")
)

// AudioStore holds one MP3 per story.
type AudioStore interface {
	// Save stores data under id and returns the URL clients download it from.
	Save(ctx context.Context, id string, data []byte) (string, error)
	Open(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

// Sweeper removes stored audio older than ttl and reports how many
// objects it removed.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
}

// AudioPath is the API route serving a story's audio.
func AudioPath(id string) string {
	return fmt.Sprintf("/v1/stories/%s/audio", id)
}

func objectName(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return parsed.String() + ".mp3", nil
}
