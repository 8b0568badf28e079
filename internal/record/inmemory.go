package record

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("meeting record not found")

// InMemoryStore is a simple in-process record store for local/dev use.
type InMemoryStore struct {
	mu        sync.RWMutex
	bySession map[string]MeetingRecord
	byOwner   map[string][]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		bySession: make(map[string]MeetingRecord),
		byOwner:   make(map[string][]string),
	}
}

func (s *InMemoryStore) Save(_ context.Context, rec MeetingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.bySession[rec.SessionID]; !exists {
		s.byOwner[rec.Owner] = append(s.byOwner[rec.Owner], rec.SessionID)
	}
	s.bySession[rec.SessionID] = rec
	return nil
}

func (s *InMemoryStore) BySession(_ context.Context, sessionID string) (MeetingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.bySession[sessionID]
	if !ok {
		return MeetingRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) RecentByOwner(_ context.Context, owner string, limit int) ([]MeetingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byOwner[owner]
	if len(ids) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	out := make([]MeetingRecord, 0, limit)
	for i := len(ids) - limit; i < len(ids); i++ {
		out = append(out, s.bySession[ids[i]])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
