package quota

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	url := os.Getenv("STORYTIME_TEST_REDIS_URL")
	if url == "" {
		t.Skip("STORYTIME_TEST_REDIS_URL not set")
	}

	store, err := NewRedisStore(url, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestNewRedisStoreWithClientRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := NewRedisStoreWithClient(nil, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewRedisStoreBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewRedisStore("not a url", time.Minute)
	assert.Error(t, err)
}

func TestRedisStoreLimiter(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	session := "test-" + uuid.NewString()

	limiter := NewLimiter(store, 2).WithClock(func() time.Time { return day(1) })

	d, err := limiter.Consume(ctx, session)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, err = limiter.Consume(ctx, session)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Consume(ctx, session)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	record, err := store.Get(ctx, session)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 2, record.StoriesGeneratedToday)
	assert.Equal(t, "2024-03-01", record.LastGenerationDate)
}
