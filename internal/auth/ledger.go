package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TokenDigest returns the storage key for a token value.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Ledger tracks explicitly revoked tokens on top of a RevocationStore.
type Ledger struct {
	store RevocationStore
	now   func() time.Time
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLedgerClock overrides the time source (useful for tests).
func WithLedgerClock(fn func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLedger wraps store.
func NewLedger(store RevocationStore, opts ...LedgerOption) *Ledger {
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Revoke records token as permanently rejected. Revoking twice is a no-op success.
func (l *Ledger) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("auth: token is required")
	}
	return l.store.Put(ctx, RevocationEntry{
		Digest:    TokenDigest(token),
		RevokedAt: l.now().UTC(),
		ExpiresAt: expiresAt.UTC(),
	})
}

// IsRevoked reports whether token was revoked.
func (l *Ledger) IsRevoked(ctx context.Context, token string) (bool, error) {
	return l.store.Exists(ctx, TokenDigest(token))
}

// Compact drops entries for tokens that have expired on their own.
func (l *Ledger) Compact(ctx context.Context) (int64, error) {
	return l.store.Purge(ctx, l.now().UTC())
}

// RunCompaction calls Compact every interval until ctx is done.
func (l *Ledger) RunCompaction(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.Compact(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error().Err(err).Msg("revocation compaction failed")
				continue
			}
			if n > 0 {
				logger.Info().Int64("purged", n).Msg("revocation ledger compacted")
			}
		}
	}
}
