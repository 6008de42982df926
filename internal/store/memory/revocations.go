package memory

import (
	"context"
	"sync"
	"time"

	"jwtpizza.org/internal/auth"
)

// Revocations implements auth.RevocationStore in memory.
type Revocations struct {
	mu      sync.RWMutex
	entries map[string]auth.RevocationEntry
}

var _ auth.RevocationStore = (*Revocations)(nil)

func NewRevocations() *Revocations {
	return &Revocations{entries: make(map[string]auth.RevocationEntry)}
}

// Put keeps the first entry recorded for a digest.
func (s *Revocations) Put(ctx context.Context, e auth.RevocationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.Digest]; ok {
		return nil
	}
	s.entries[e.Digest] = e
	return nil
}

func (s *Revocations) Exists(ctx context.Context, digest string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[digest]
	return ok, nil
}

// Purge drops entries whose token expired at or before before.
func (s *Revocations) Purge(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, e := range s.entries {
		if !e.ExpiresAt.After(before) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}
