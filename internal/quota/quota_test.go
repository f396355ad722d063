package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 20, 30, 0, 0, time.Local)
}

func TestNewRecord(t *testing.T) {
	t.Parallel()

	r := NewRecord("abc", day(1))
	assert.Equal(t, "abc", r.SessionID)
	assert.Equal(t, 0, r.StoriesGeneratedToday)
	assert.Equal(t, "2024-03-01", r.LastGenerationDate)

	generated := NewRecord("", day(1))
	assert.NotEmpty(t, generated.SessionID)
	assert.NotEqual(t, generated.SessionID, NewRecord("", day(1)).SessionID)
}

func TestCheckAndUpdate(t *testing.T) {
	t.Parallel()

	r := NewRecord("s", day(1))

	for i := 1; i <= 10; i++ {
		d := r.CheckAndUpdate(day(1), 10)
		require.True(t, d.Allowed, "story %d should be allowed", i)
		assert.Equal(t, 10-i, d.Remaining)
	}

	d := r.CheckAndUpdate(day(1), 10)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, "You've created 10 stories today! Come back tomorrow for more magical adventures.", d.Message)
	assert.Equal(t, 10, r.StoriesGeneratedToday)
}

func TestCheckAndUpdateMessage(t *testing.T) {
	t.Parallel()

	r := NewRecord("s", day(1))
	d := r.CheckAndUpdate(day(1), 10)
	assert.Equal(t, "Story generated! You have 9 stories remaining today.", d.Message)
}

func TestCheckAndUpdateRollsOverAtMidnight(t *testing.T) {
	t.Parallel()

	r := &Record{SessionID: "s", StoriesGeneratedToday: 10, LastGenerationDate: "2024-03-01"}

	d := r.CheckAndUpdate(day(2), 10)
	assert.True(t, d.Allowed)
	assert.Equal(t, 9, d.Remaining)
	assert.Equal(t, 1, r.StoriesGeneratedToday)
	assert.Equal(t, "2024-03-02", r.LastGenerationDate)
}

func TestRefund(t *testing.T) {
	t.Parallel()

	r := &Record{SessionID: "s", StoriesGeneratedToday: 3, LastGenerationDate: "2024-03-01"}
	r.Refund(day(1))
	assert.Equal(t, 2, r.StoriesGeneratedToday)

	empty := NewRecord("s", day(1))
	empty.Refund(day(1))
	assert.Equal(t, 0, empty.StoriesGeneratedToday)

	stale := &Record{SessionID: "s", StoriesGeneratedToday: 5, LastGenerationDate: "2024-03-01"}
	stale.Refund(day(2))
	assert.Equal(t, 0, stale.StoriesGeneratedToday)
}

func TestRemaining(t *testing.T) {
	t.Parallel()

	var missing *Record
	assert.Equal(t, 10, missing.Remaining(day(1), 10))

	r := &Record{SessionID: "s", StoriesGeneratedToday: 4, LastGenerationDate: "2024-03-01"}
	assert.Equal(t, 6, r.Remaining(day(1), 10))
	assert.Equal(t, 10, r.Remaining(day(2), 10))
	assert.Equal(t, 4, r.StoriesGeneratedToday, "Remaining must not modify the record")

	over := &Record{SessionID: "s", StoriesGeneratedToday: 12, LastGenerationDate: "2024-03-01"}
	assert.Equal(t, 0, over.Remaining(day(1), 10))
}

func TestStatusMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		count int
		want  string
	}{
		{"fresh session", 0, "Welcome! You can create up to 10 stories today."},
		{"some used", 3, "7 stories remaining today"},
		{"one left", 9, "1 story remaining today"},
		{"exhausted", 10, "No stories remaining today. Come back tomorrow!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := &Record{SessionID: "s", StoriesGeneratedToday: tt.count, LastGenerationDate: "2024-03-01"}
			assert.Equal(t, tt.want, r.StatusMessage(day(1), 10))
		})
	}

	var missing *Record
	assert.Equal(t, "Welcome! You can create up to 10 stories today.", missing.StatusMessage(day(1), 10))
}

func TestLimiterConsume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := day(1)
	limiter := NewLimiter(NewMemoryStore(), 3).WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		d, err := limiter.Consume(ctx, "session")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := limiter.Consume(ctx, "session")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	other, err := limiter.Consume(ctx, "other")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "sessions are counted independently")

	now = day(2)
	d, err = limiter.Consume(ctx, "session")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
}

func TestLimiterRefundAndStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter := NewLimiter(NewMemoryStore(), 10).WithClock(func() time.Time { return day(1) })

	remaining, msg, err := limiter.Status(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
	assert.Equal(t, "Welcome! You can create up to 10 stories today.", msg)

	_, err = limiter.Consume(ctx, "s")
	require.NoError(t, err)
	_, err = limiter.Consume(ctx, "s")
	require.NoError(t, err)

	remaining, msg, err = limiter.Status(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 8, remaining)
	assert.Equal(t, "8 stories remaining today", msg)

	require.NoError(t, limiter.Refund(ctx, "s"))
	remaining, _, err = limiter.Status(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 9, remaining)
}

func TestLimiterDefaultMax(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultMaxStoriesPerDay, NewLimiter(NewMemoryStore(), 0).Max())
	assert.Equal(t, 4, NewLimiter(NewMemoryStore(), 4).Max())
}

func TestLimiterConcurrentConsume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	limiter := NewLimiter(store, 10).WithClock(func() time.Time { return day(1) })

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Consume(ctx, "shared")
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)

	record, err := store.Get(ctx, "shared")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 10, record.StoriesGeneratedToday)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Update(ctx, "s", day(1), func(r *Record) error {
		r.StoriesGeneratedToday = 2
		return nil
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, "s")
	require.NoError(t, err)
	got.StoriesGeneratedToday = 99

	again, err := store.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, again.StoriesGeneratedToday)

	missing, err := store.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.Close())
}
