package jobstate

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local development.
// Entries honor their TTL lazily on read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewMemoryStore returns an empty in-memory job state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}}
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(jobID)
}

func (s *MemoryStore) Update(ctx context.Context, jobID string, ttl time.Duration, fn func(current *State) (*State, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.getLocked(jobID)
	if err != nil && err != ErrNotFound {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	payload, err := json.Marshal(next)
	if err != nil {
		return err
	}
	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries[jobID] = entry
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, jobID)
	return nil
}

func (s *MemoryStore) getLocked(jobID string) (*State, error) {
	entry, ok := s.entries[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(s.entries, jobID)
		return nil, ErrNotFound
	}
	var state State
	if err := json.Unmarshal(entry.payload, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
