package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// RegisterInput carries registration fields.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Sessions orchestrates register, login, logout and profile updates.
type Sessions struct {
	users  UserStore
	codec  *Codec
	ledger *Ledger
	policy *Policy
	hasher PasswordHasher
	now    func() time.Time

	// dummy is compared against when an email is unknown so a failed login costs the
	// same whether or not the account exists.
	dummyOnce sync.Once
	dummy     string
}

// SessionOption configures Sessions.
type SessionOption func(*Sessions)

// WithHasher overrides the password hasher.
func WithHasher(h PasswordHasher) SessionOption {
	return func(s *Sessions) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithPolicy overrides the policy table used for profile updates.
func WithPolicy(p *Policy) SessionOption {
	return func(s *Sessions) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithSessionClock overrides the time source (useful for tests).
func WithSessionClock(fn func() time.Time) SessionOption {
	return func(s *Sessions) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSessions wires the session manager.
func NewSessions(users UserStore, codec *Codec, ledger *Ledger, opts ...SessionOption) (*Sessions, error) {
	if users == nil || codec == nil || ledger == nil {
		return nil, errors.New("auth: user store, codec and ledger are required")
	}
	s := &Sessions{
		users:  users,
		codec:  codec,
		ledger: ledger,
		policy: NewPolicy(),
		hasher: BcryptHasher{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Policy returns the policy table in use.
func (s *Sessions) Policy() *Policy { return s.policy }

// Register creates a Diner account and signs it in.
func (s *Sessions) Register(ctx context.Context, in RegisterInput) (User, SessionToken, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return User{}, SessionToken{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Password == "" {
		return User{}, SessionToken{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return User{}, SessionToken{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, SessionToken{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.Insert(ctx, User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Roles:        []RoleAssignment{{Role: RoleDiner}},
	})
	if err != nil {
		return User{}, SessionToken{}, err
	}
	token, err := s.codec.Issue(user)
	if err != nil {
		return User{}, SessionToken{}, err
	}
	return user, token, nil
}

// Login verifies credentials and issues a fresh token. Other sessions of the same user
// stay valid.
func (s *Sessions) Login(ctx context.Context, email, password string) (User, SessionToken, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return User{}, SessionToken{}, ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return User{}, SessionToken{}, err
		}
		_ = s.hasher.Verify(s.dummyHash(), password)
		return User{}, SessionToken{}, ErrInvalidCredentials
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		return User{}, SessionToken{}, ErrInvalidCredentials
	}
	token, err := s.codec.Issue(user)
	if err != nil {
		return User{}, SessionToken{}, err
	}
	return user, token, nil
}

func (s *Sessions) dummyHash() string {
	s.dummyOnce.Do(func() {
		s.dummy, _ = s.hasher.Hash("unknown-account-" + s.now().String())
	})
	return s.dummy
}

// Logout revokes token. Expired or already revoked tokens succeed; a token that is not
// ours fails with ErrUnauthorized.
func (s *Sessions) Logout(ctx context.Context, token string) error {
	info, err := s.codec.Inspect(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return s.ledger.Revoke(ctx, token, info.ExpiresAt)
}

// Authenticate resolves a bearer token to an actor. Every token failure is reported as
// ErrUnauthorized; storage failures are returned as-is.
func (s *Sessions) Authenticate(ctx context.Context, token string) (Actor, error) {
	info, err := s.codec.Parse(token)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	revoked, err := s.ledger.IsRevoked(ctx, token)
	if err != nil {
		return Actor{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Actor{}, fmt.Errorf("%w: token revoked", ErrUnauthorized)
	}
	return info.Actor(), nil
}

// Verify resolves a token for RequireToken actions: signature only.
func (s *Sessions) Verify(token string) (Actor, error) {
	info, err := s.codec.Inspect(token)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return info.Actor(), nil
}

// UpdateProfile changes targetID's profile. Only the user themself or an Admin may do
// so. Already issued tokens keep their role snapshot.
func (s *Sessions) UpdateProfile(ctx context.Context, actor *Actor, targetID string, upd ProfileUpdate) (User, error) {
	targetID = strings.TrimSpace(targetID)
	if err := s.policy.Authorize(actor, ActionUpdateUser, Resource{Kind: ResourceUser, ID: targetID}); err != nil {
		return User{}, err
	}
	user, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return User{}, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return User{}, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		user.Name = name
	}
	if upd.Email != nil {
		email, err := NormalizeEmail(*upd.Email)
		if err != nil {
			return User{}, err
		}
		user.Email = email
	}
	if upd.Password != nil {
		if *upd.Password == "" {
			return User{}, fmt.Errorf("%w: password must not be empty", ErrInvalidInput)
		}
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.now().UTC()
	return s.users.UpdateProfile(ctx, user)
}

// EnsureAdmin creates an Admin account for email unless one already exists. An
// existing non-admin account with that email is promoted.
func (s *Sessions) EnsureAdmin(ctx context.Context, name, email, password string) (User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	existing, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.HasRole(RoleAdmin) {
			return existing, nil
		}
		if err := s.users.GrantRole(ctx, existing.ID, RoleAssignment{Role: RoleAdmin}); err != nil {
			return User{}, fmt.Errorf("grant admin role: %w", err)
		}
		return s.users.FindByID(ctx, existing.ID)
	case !errors.Is(err, ErrNotFound):
		return User{}, err
	}
	if password == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if strings.TrimSpace(name) == "" {
		name = "admin"
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.Insert(ctx, User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Roles:        []RoleAssignment{{Role: RoleAdmin}},
	})
	if errors.Is(err, ErrDuplicateEmail) {
		return s.users.FindByEmail(ctx, email)
	}
	return user, err
}
