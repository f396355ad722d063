package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Records are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[sessionID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, sessionID string, now time.Time, fn func(*Record) error) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[sessionID]
	if !ok {
		record = *NewRecord(sessionID, now)
	}

	if err := fn(&record); err != nil {
		return nil, err
	}

	s.records[sessionID] = record
	out := record
	return &out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]Record)
	return nil
}
