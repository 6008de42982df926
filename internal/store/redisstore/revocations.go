// Package redisstore keeps the revocation ledger in Redis so every API replica sees a
// logout immediately.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jwtpizza.org/internal/auth"
)

// DefaultPrefix namespaces revocation keys.
const DefaultPrefix = "revoked:"

// Revocations implements auth.RevocationStore. Each entry lives until the token it
// revokes would have expired on its own.
type Revocations struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ auth.RevocationStore = (*Revocations)(nil)

// NewRevocations creates a Redis-backed revocation store. An empty prefix uses
// DefaultPrefix.
func NewRevocations(client redis.UniversalClient, prefix string) *Revocations {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Revocations{client: client, prefix: prefix, now: time.Now}
}

// Put stores the entry with SET NX so the first revocation time is kept. Entries for
// tokens that are already expired are not stored.
func (r *Revocations) Put(ctx context.Context, e auth.RevocationEntry) error {
	if e.Digest == "" {
		return errors.New("revocation digest cannot be empty")
	}
	ttl := e.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.SetNX(ctx, r.prefix+e.Digest, e.RevokedAt.UTC().Format(time.RFC3339Nano), ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

func (r *Revocations) Exists(ctx context.Context, digest string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+digest).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Purge is a no-op: Redis expires keys on its own.
func (r *Revocations) Purge(context.Context, time.Time) (int64, error) { return 0, nil }

// Ping reports whether Redis is reachable.
func (r *Revocations) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
