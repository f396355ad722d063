package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bobarin/storytime/internal/quota"
)

// QuotaStore implements quota.Store on top of the story_quotas table.
type QuotaStore struct {
	db *DB
}

func NewQuotaStore(db *DB) *QuotaStore {
	return &QuotaStore{db: db}
}

func (s *QuotaStore) Get(ctx context.Context, sessionID string) (*quota.Record, error) {
	query := `
		SELECT session_id, stories_generated_today, last_generation_date
		FROM story_quotas
		WHERE session_id = $1
	`

	record := &quota.Record{}
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&record.SessionID, &record.StoriesGeneratedToday, &record.LastGenerationDate,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}

	return record, nil
}

// Update locks the session row for the duration of fn.
func (s *QuotaStore) Update(ctx context.Context, sessionID string, now time.Time, fn func(*quota.Record) error) (*quota.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	fresh := quota.NewRecord(sessionID, now)

	insert := `
		INSERT INTO story_quotas (session_id, stories_generated_today, last_generation_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, insert, fresh.SessionID, fresh.StoriesGeneratedToday, fresh.LastGenerationDate); err != nil {
		return nil, fmt.Errorf("failed to insert quota: %w", err)
	}

	selectQuery := `
		SELECT session_id, stories_generated_today, last_generation_date
		FROM story_quotas
		WHERE session_id = $1
		FOR UPDATE
	`
	record := &quota.Record{}
	err = tx.QueryRowContext(ctx, selectQuery, sessionID).Scan(
		&record.SessionID, &record.StoriesGeneratedToday, &record.LastGenerationDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock quota: %w", err)
	}

	if err := fn(record); err != nil {
		return nil, err
	}

	update := `
		UPDATE story_quotas
		SET stories_generated_today = $2, last_generation_date = $3, updated_at = NOW()
		WHERE session_id = $1
	`
	if _, err := tx.ExecContext(ctx, update, sessionID, record.StoriesGeneratedToday, record.LastGenerationDate); err != nil {
		return nil, fmt.Errorf("failed to update quota: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit quota: %w", err)
	}

	return record, nil
}

// DeleteStale removes quota rows that have not been touched since before.
func (s *QuotaStore) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM story_quotas WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale quotas: %w", err)
	}
	return result.RowsAffected()
}

func (s *QuotaStore) Close() error {
	return s.db.Close()
}
