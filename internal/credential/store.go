package credential

import (
	"context"
	"sync"
)

// Pair is the current access/refresh token pair. Both tokens are replaced
// together; no component ever holds one half on its own.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

func (p Pair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Store holds the credential pair. Set replaces both tokens atomically;
// a concurrent Get never observes a half-updated pair.
type Store interface {
	Get(ctx context.Context) (Pair, error)
	Set(ctx context.Context, pair Pair) error
	Clear(ctx context.Context) error
}

type MemoryStore struct {
	mu   sync.RWMutex
	pair Pair
}

func NewMemoryStore(initial Pair) *MemoryStore {
	return &MemoryStore{pair: initial}
}

func (s *MemoryStore) Get(_ context.Context) (Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, nil
}

func (s *MemoryStore) Set(_ context.Context, pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = Pair{}
	return nil
}
