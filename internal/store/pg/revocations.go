package pg

import (
	"context"
	"time"

	"jwtpizza.org/internal/auth"
)

// Revocations adapts Store to auth.RevocationStore.
type Revocations struct {
	s *Store
}

var _ auth.RevocationStore = Revocations{}

// Revocations returns the revocation ledger view of the store.
func (s *Store) Revocations() Revocations { return Revocations{s: s} }

func (r Revocations) Put(ctx context.Context, e auth.RevocationEntry) error {
	if r.s.db == nil {
		return errNoDB
	}
	_, err := r.s.db.ExecContext(ctx, `
		insert into revoked_tokens (digest, revoked_at, expires_at)
		values ($1, $2, $3)
		on conflict (digest) do nothing
	`, e.Digest, e.RevokedAt, e.ExpiresAt)
	return err
}

func (r Revocations) Exists(ctx context.Context, digest string) (bool, error) {
	if r.s.db == nil {
		return false, errNoDB
	}
	var exists bool
	err := r.s.db.QueryRowContext(ctx, `
		select exists(select 1 from revoked_tokens where digest = $1)
	`, digest).Scan(&exists)
	return exists, err
}

func (r Revocations) Purge(ctx context.Context, before time.Time) (int64, error) {
	if r.s.db == nil {
		return 0, errNoDB
	}
	res, err := r.s.db.ExecContext(ctx, `delete from revoked_tokens where expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
