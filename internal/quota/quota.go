// Package quota tracks how many stories a browser session has generated today.
// Counters are keyed by session, so clearing cookies resets them.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxStoriesPerDay is the daily allowance when none is configured.
const DefaultMaxStoriesPerDay = 10

const dateLayout = "2006-01-02"

var (
	// ErrInvalidConfig is returned when a store is constructed without its backend.
	ErrInvalidConfig = errors.New("invalid quota store configuration")
	// ErrConflict is returned when an optimistic update kept losing races.
	ErrConflict = errors.New("quota record update conflict")
)

// Record is the per-session rate-limit state.
type Record struct {
	SessionID             string `json:"session_id"`
	StoriesGeneratedToday int    `json:"stories_generated_today"`
	LastGenerationDate    string `json:"last_generation_date"` // YYYY-MM-DD in the server's local time
}

// Decision is the outcome of a single CheckAndUpdate call.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message"`
}

// NewRecord returns a fresh record dated today. An empty sessionID gets a random one.
func NewRecord(sessionID string, now time.Time) *Record {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Record{
		SessionID:             sessionID,
		StoriesGeneratedToday: 0,
		LastGenerationDate:    now.Format(dateLayout),
	}
}

// rollover resets the counter when the stored date is not today.
func (r *Record) rollover(now time.Time) {
	today := now.Format(dateLayout)
	if r.LastGenerationDate != today {
		r.StoriesGeneratedToday = 0
		r.LastGenerationDate = today
	}
}

// CheckAndUpdate decides whether one more story may be generated and, if so,
// counts it. The counter never exceeds max.
func (r *Record) CheckAndUpdate(now time.Time, max int) Decision {
	r.rollover(now)

	if r.StoriesGeneratedToday >= max {
		return Decision{
			Allowed:   false,
			Remaining: 0,
			Message: fmt.Sprintf("You've created %d stories today! "+
				"Come back tomorrow for more magical adventures.", max),
		}
	}

	r.StoriesGeneratedToday++
	remaining := max - r.StoriesGeneratedToday

	return Decision{
		Allowed:   true,
		Remaining: remaining,
		Message:   fmt.Sprintf("Story generated! You have %d stories remaining today.", remaining),
	}
}

// Refund gives back one story, used when generation failed after the quota was taken.
func (r *Record) Refund(now time.Time) {
	r.rollover(now)
	if r.StoriesGeneratedToday > 0 {
		r.StoriesGeneratedToday--
	}
}

// Remaining reports how many stories are left today without modifying the record.
func (r *Record) Remaining(now time.Time, max int) int {
	if r == nil || r.LastGenerationDate != now.Format(dateLayout) {
		return max
	}
	if left := max - r.StoriesGeneratedToday; left > 0 {
		return left
	}
	return 0
}

// StatusMessage is a friendly summary of the remaining allowance.
func (r *Record) StatusMessage(now time.Time, max int) string {
	remaining := r.Remaining(now, max)

	switch remaining {
	case 0:
		return "No stories remaining today. Come back tomorrow!"
	case 1:
		return "1 story remaining today"
	case max:
		return fmt.Sprintf("Welcome! You can create up to %d stories today.", max)
	default:
		return fmt.Sprintf("%d stories remaining today", remaining)
	}
}

// Store persists quota records.
type Store interface {
	// Get returns the stored record, or nil when the session has none.
	Get(ctx context.Context, sessionID string) (*Record, error)

	// Update loads the record (creating it if absent), applies fn and persists
	// the result atomically with respect to other Update calls for the same session.
	Update(ctx context.Context, sessionID string, now time.Time, fn func(*Record) error) (*Record, error)

	// Close releases the underlying resources.
	Close() error
}
