package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// LocalStore keeps audio files in a directory on local disk. The API serves
// them from AudioPath(id).
type LocalStore struct {
	dir string
}

var (
	_ AudioStore = (*LocalStore)(nil)
	_ Sweeper    = (*LocalStore)(nil)
)

func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "storytime", "audio")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audio dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(id string) (string, error) {
	name, err := objectName(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

func (s *LocalStore) Save(ctx context.Context, id string, data []byte) (string, error) {
	path, err := s.path(id)
	if err != nil {
		return "", err
	}

	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to store audio: %w", err)
	}

	return AudioPath(id), nil
}

func (s *LocalStore) Open(ctx context.Context, id string) ([]byte, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	return data, nil
}

func (s *LocalStore) Delete(ctx context.Context, id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete audio: %w", err)
	}
	return nil
}

// Sweep removes audio files last modified before now-ttl and returns how
// many were removed.
func (s *LocalStore) Sweep(_ context.Context, now time.Time, ttl time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list audio dir: %w", err)
	}

	cutoff := now.Add(-ttl)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !(strings.HasSuffix(e.Name(), ".mp3") || strings.HasSuffix(e.Name(), ".part")) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("component", "storage").Str("file", e.Name()).Msg("failed to sweep audio")
			continue
		}
		removed++
	}

	return removed, nil
}
