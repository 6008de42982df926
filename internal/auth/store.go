package auth

import (
	"context"
	"time"
)

// UserStore is the credential store consumed by the session manager.
// Insert must enforce email uniqueness atomically and fail with ErrDuplicateEmail.
//
// Profile fields and role assignments are written separately: UpdateProfile never
// touches roles, and roles change one assignment at a time through GrantRole and
// RevokeRole, so concurrent writers cannot drop each other's grants.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Insert(ctx context.Context, u User) (User, error)
	// UpdateProfile writes name, email and password hash and returns the stored user
	// with its current roles.
	UpdateProfile(ctx context.Context, u User) (User, error)
	RoleWriter
}

// RoleWriter changes single role assignments. Both operations are idempotent and fail
// with ErrNotFound for an unknown user.
type RoleWriter interface {
	GrantRole(ctx context.Context, userID string, role RoleAssignment) error
	RevokeRole(ctx context.Context, userID string, role RoleAssignment) error
}

// RevocationEntry records an explicitly invalidated token. Digest is the SHA-256 of the
// token value; ExpiresAt is the token's own expiry and bounds how long the entry matters.
type RevocationEntry struct {
	Digest    string
	RevokedAt time.Time
	ExpiresAt time.Time
}

// RevocationStore persists revocation entries. Put is idempotent.
type RevocationStore interface {
	Put(ctx context.Context, entry RevocationEntry) error
	Exists(ctx context.Context, digest string) (bool, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}
