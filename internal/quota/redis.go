package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const (
	redisKeyPrefix = "storytime:quota:"

	defaultRedisTTL = 48 * time.Hour

	maxUpdateAttempts = 5
)

// RedisStore keeps records in Redis as JSON, updated with WATCH/MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl)
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, ErrInvalidConfig
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Record, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quota record: %w", err)
	}

	var record Record
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quota record: %w", err)
	}
	return &record, nil
}

// Update implements Store.
func (s *RedisStore) Update(ctx context.Context, sessionID string, now time.Time, fn func(*Record) error) (*Record, error) {
	key := s.key(sessionID)

	var result Record
	txf := func(tx *redis.Tx) error {
		record := NewRecord(sessionID, now)

		val, err := tx.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
		case err != nil:
			return err
		default:
			if err := json.Unmarshal([]byte(val), record); err != nil {
				return fmt.Errorf("failed to unmarshal quota record: %w", err)
			}
		}

		if err := fn(record); err != nil {
			return err
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal quota record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			result = *record
		}
		return err
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return &result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, fmt.Errorf("failed to update quota record: %w", err)
		}
		log.Debug().Str("component", "quota").Str("session", sessionID).Int("attempt", attempt).
			Msg("quota record changed during update, retrying")
	}

	return nil, ErrConflict
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(sessionID string) string {
	return redisKeyPrefix + sessionID
}
