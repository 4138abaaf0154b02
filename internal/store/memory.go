package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
)

// MemoryStore keeps checkpoints in process memory. It is used by tests and
// by single-process CLI sessions.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*domain.Checkpoint
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{items: make(map[string]*domain.Checkpoint)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.items[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cp.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, cp *domain.Checkpoint) error {
	if cp == nil || cp.SessionID == "" {
		return errors.New("checkpoint must have a session id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if existing, ok := s.items[cp.SessionID]; ok {
		stored = existing.Version
	}
	if stored != cp.Version {
		return ErrConflict
	}

	now := time.Now().UTC()
	cp.Version++
	cp.UpdatedAt = now
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	s.items[cp.SessionID] = cp.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, sessionID)
	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().Add(-ttl)
	var removed int64
	for id, cp := range s.items {
		if cp.UpdatedAt.Before(threshold) {
			delete(s.items, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
