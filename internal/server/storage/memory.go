package storage

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps shares in a process-local map.
type MemoryStore struct {
	mu     sync.RWMutex
	shares map[string]*Share
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{shares: make(map[string]*Share)}
}

func (s *MemoryStore) Create(ctx context.Context, share *Share) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.shares[share.Code]; exists {
		return ErrCodeCollision
	}
	s.shares[share.Code] = share.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, code string) (*Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	share, ok := s.shares[code]
	if !ok {
		return nil, ErrNotFound
	}
	return share.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, share *Share, from Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.shares[share.Code]
	if !ok {
		return ErrNotFound
	}
	if stored.Revision() != from {
		return ErrConflict
	}
	stored.Content = share.Content
	stored.Views = share.Views
	stored.IsAccessed = share.IsAccessed
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.shares, code)
	return nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for code, share := range s.shares {
		if share.ExpiresAt.Before(now) {
			delete(s.shares, code)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := NewStats()
	for _, share := range s.shares {
		stats.Add(share, now)
	}
	return stats, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shares = make(map[string]*Share)
	return nil
}
