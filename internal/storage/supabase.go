package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// Timeout per attempt. Story MP3s are a few megabytes at most.
	requestTimeout = 60 * time.Second

	// Retry configuration
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second

	objectPrefix = "stories"

	// Page size for bucket listings during a sweep.
	listPageSize = 100
)

// SupabaseStore keeps audio in a Supabase Storage bucket and hands out
// signed URLs.
type SupabaseStore struct {
	url          string
	serviceKey   string
	Bucket       string
	signedURLTTL time.Duration
	baseDelay    time.Duration
	client       *http.Client
}

var (
	_ AudioStore = (*SupabaseStore)(nil)
	_ Sweeper    = (*SupabaseStore)(nil)
)

func NewSupabaseStore(url, serviceKey, bucket string, signedURLTTL time.Duration) *SupabaseStore {
	if signedURLTTL <= 0 {
		signedURLTTL = time.Hour
	}
	return &SupabaseStore{
		url:          strings.TrimRight(url, "/"),
		serviceKey:   serviceKey,
		Bucket:       bucket,
		signedURLTTL: signedURLTTL,
		baseDelay:    baseRetryDelay,
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func objectPath(id string) (string, error) {
	name, err := objectName(id)
	if err != nil {
		return "", err
	}
	return objectPrefix + "/" + name, nil
}

// Save uploads the audio and returns a signed download URL.
func (s *SupabaseStore) Save(ctx context.Context, id string, data []byte) (string, error) {
	path, err := objectPath(id)
	if err != nil {
		return "", err
	}
	if err := s.Upload(ctx, path, data, audioContentType); err != nil {
		return "", err
	}
	return s.GetSignedURL(ctx, path, int(s.signedURLTTL/time.Second))
}

func (s *SupabaseStore) Open(ctx context.Context, id string) ([]byte, error) {
	path, err := objectPath(id)
	if err != nil {
		return nil, err
	}
	return s.Download(ctx, path)
}

func (s *SupabaseStore) Delete(ctx context.Context, id string) error {
	path, err := objectPath(id)
	if err != nil {
		return err
	}
	return s.deleteObject(ctx, path)
}

func (s *SupabaseStore) deleteObject(ctx context.Context, path string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("delete failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
}

// bucketObject is one entry of a Storage list response. Folders come back
// with a null id.
type bucketObject struct {
	Name      string    `json:"name"`
	ID        *string   `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Sweep deletes story audio uploaded before now-ttl and returns how many
// objects were removed.
func (s *SupabaseStore) Sweep(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	cutoff := now.Add(-ttl)

	var expired []string
	for offset := 0; ; offset += listPageSize {
		page, err := s.list(ctx, objectPrefix, offset)
		if err != nil {
			return 0, err
		}
		for _, obj := range page {
			if obj.ID == nil || !strings.HasSuffix(obj.Name, ".mp3") {
				continue
			}
			if obj.CreatedAt.IsZero() || obj.CreatedAt.After(cutoff) {
				continue
			}
			expired = append(expired, objectPrefix+"/"+obj.Name)
		}
		if len(page) < listPageSize {
			break
		}
	}

	// Deleting while paging would shift the offsets, so delete afterwards.
	removed := 0
	for _, path := range expired {
		if err := s.deleteObject(ctx, path); err != nil {
			log.Warn().Err(err).Str("component", "storage").Str("path", path).Msg("failed to sweep audio")
			continue
		}
		removed++
	}

	return removed, nil
}

func (s *SupabaseStore) list(ctx context.Context, prefix string, offset int) ([]bucketObject, error) {
	url := fmt.Sprintf("%s/storage/v1/object/list/%s", s.url, s.Bucket)

	payload, err := json.Marshal(map[string]interface{}{
		"prefix": prefix,
		"limit":  listPageSize,
		"offset": offset,
		"sortBy": map[string]string{"column": "created_at", "order": "asc"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode list request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var objects []bucketObject
	if err := json.NewDecoder(resp.Body).Decode(&objects); err != nil {
		return nil, fmt.Errorf("failed to parse list response: %w", err)
	}
	return objects, nil
}

// Upload uploads an object with retries and exponential backoff.
func (s *SupabaseStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, path)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay(attempt)
			log.Warn().Str("component", "storage").Str("path", path).Int("attempt", attempt).
				Dur("wait", delay).Msg("retrying upload")

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		uploadCtx, cancel := context.WithTimeout(ctx, requestTimeout)

		req, err := http.NewRequestWithContext(uploadCtx, http.MethodPut, url, bytes.NewReader(data))
		if err != nil {
			cancel()
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("failed to upload: %w", err)
			if isRetryableError(err) {
				continue
			}
			return lastErr
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			return nil
		}

		lastErr = fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if isRetryableStatus(resp.StatusCode) {
			continue
		}

		// 400, 401, 403, 404, 413, ...
		return lastErr
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxRetries+1, lastErr)
}

// Download fetches an object with retries. A missing object yields ErrNotFound.
func (s *SupabaseStore) Download(ctx context.Context, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, path)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay(attempt)
			log.Warn().Str("component", "storage").Str("path", path).Int("attempt", attempt).
				Dur("wait", delay).Msg("retrying download")

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("download cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		dlCtx, cancel := context.WithTimeout(ctx, requestTimeout)

		req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("failed to download: %w", err)
			if isRetryableError(err) {
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode == http.StatusOK {
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			cancel()
			if err != nil {
				lastErr = fmt.Errorf("failed to read download body: %w", err)
				continue
			}
			return data, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		// Supabase reports missing objects as 400 or 404 depending on version.
		if resp.StatusCode == http.StatusNotFound ||
			(resp.StatusCode == http.StatusBadRequest && strings.Contains(string(body), "not_found")) {
			return nil, ErrNotFound
		}

		lastErr = fmt.Errorf("download failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if isRetryableStatus(resp.StatusCode) {
			continue
		}
		return nil, lastErr
	}

	return nil, fmt.Errorf("download failed after %d attempts: %w", maxRetries+1, lastErr)
}

// GetSignedURL creates a signed URL valid for expiresIn seconds.
func (s *SupabaseStore) GetSignedURL(ctx context.Context, path string, expiresIn int) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.url, s.Bucket, path)

	body := fmt.Sprintf(`{"expiresIn": %d}`, expiresIn)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get signed URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse signed URL response: %w", err)
	}

	// signedURL is relative to /storage/v1
	return s.url + "/storage/v1" + result.SignedURL, nil
}

// retryDelay is exponential backoff with 0-25% jitter.
func (s *SupabaseStore) retryDelay(attempt int) time.Duration {
	delay := float64(s.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
