package quota

import (
	"context"
	"fmt"
	"time"
)

// Limiter applies the daily allowance on top of a Store.
type Limiter struct {
	store Store
	max   int
	now   func() time.Time
}

// NewLimiter creates a limiter allowing max stories per session per day.
func NewLimiter(store Store, max int) *Limiter {
	if max <= 0 {
		max = DefaultMaxStoriesPerDay
	}
	return &Limiter{
		store: store,
		max:   max,
		now:   time.Now,
	}
}

// WithClock overrides the time source. Used by tests to cross midnight.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Max returns the configured daily allowance.
func (l *Limiter) Max() int {
	return l.max
}

// Consume counts one story for the session if the allowance permits it.
func (l *Limiter) Consume(ctx context.Context, sessionID string) (Decision, error) {
	now := l.now()

	var decision Decision
	_, err := l.store.Update(ctx, sessionID, now, func(r *Record) error {
		decision = r.CheckAndUpdate(now, l.max)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to update quota for session %s: %w", sessionID, err)
	}

	return decision, nil
}

// Refund returns one story to the session's allowance.
func (l *Limiter) Refund(ctx context.Context, sessionID string) error {
	now := l.now()

	_, err := l.store.Update(ctx, sessionID, now, func(r *Record) error {
		r.Refund(now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to refund quota for session %s: %w", sessionID, err)
	}

	return nil
}

// Status reports the remaining allowance and a friendly message for the session.
func (l *Limiter) Status(ctx context.Context, sessionID string) (int, string, error) {
	now := l.now()

	record, err := l.store.Get(ctx, sessionID)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read quota for session %s: %w", sessionID, err)
	}

	return record.Remaining(now, l.max), record.StatusMessage(now, l.max), nil
}
