package presence

import (
	"context"
	"sync"
)

// MemoryStore is the in-process Store used when no Redis is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conns: make(map[string]map[string]struct{})}
}

func (s *MemoryStore) Claim(_ context.Context, username, connID string) error {
	key := normalize(username)

	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.conns[key]
	if !ok {
		set = make(map[string]struct{})
		s.conns[key] = set
	}
	set[connID] = struct{}{}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, username, connID string) error {
	key := normalize(username)

	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.conns[key]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(s.conns, key)
		}
	}
	return nil
}

func (s *MemoryStore) IsActive(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[normalize(username)]) > 0, nil
}

func (s *MemoryStore) Close() error { return nil }
