package auth

import (
	"context"
	"sync"
	"testing"
	"time"
)

type mapRevocations struct {
	mu      sync.Mutex
	entries map[string]RevocationEntry
}

func newMapRevocations() *mapRevocations {
	return &mapRevocations{entries: map[string]RevocationEntry{}}
}

func (m *mapRevocations) Put(_ context.Context, e RevocationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.Digest]; !ok {
		m.entries[e.Digest] = e
	}
	return nil
}

func (m *mapRevocations) Exists(_ context.Context, digest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[digest]
	return ok, nil
}

func (m *mapRevocations) Purge(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.entries {
		if !e.ExpiresAt.After(before) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func TestLedgerRevokeIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMapRevocations()
	l := NewLedger(store)

	revoked, err := l.IsRevoked(ctx, "tok")
	if err != nil || revoked {
		t.Fatalf("expected fresh token not revoked, got %v %v", revoked, err)
	}
	exp := time.Now().Add(time.Hour)
	if err := l.Revoke(ctx, "tok", exp); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := l.Revoke(ctx, "tok", exp); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	revoked, err = l.IsRevoked(ctx, "tok")
	if err != nil || !revoked {
		t.Fatalf("expected token revoked, got %v %v", revoked, err)
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(store.entries))
	}
	if _, ok := store.entries["tok"]; ok {
		t.Fatal("raw token must not be used as the storage key")
	}
	if err := l.Revoke(ctx, "  ", exp); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestLedgerCompact(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := newMapRevocations()
	l := NewLedger(store, WithLedgerClock(func() time.Time { return now }))

	if err := l.Revoke(ctx, "old", now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := l.Revoke(ctx, "live", now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	n, err := l.Compact(ctx)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged entry, got %d", n)
	}
	if ok, _ := l.IsRevoked(ctx, "live"); !ok {
		t.Fatal("unexpired revocation must survive compaction")
	}
}

func TestTokenDigestStable(t *testing.T) {
	if TokenDigest("abc") != TokenDigest(" abc ") {
		t.Fatal("digest must ignore surrounding whitespace")
	}
	if TokenDigest("abc") == TokenDigest("abd") {
		t.Fatal("distinct tokens must have distinct digests")
	}
}
