// Package memory holds process-local stores used by tests and single-node deployments.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"jwtpizza.org/internal/auth"
	"jwtpizza.org/internal/ids"
)

// Users implements auth.UserStore with in-process concurrency safety.
type Users struct {
	mu      sync.RWMutex
	byID    map[string]auth.User
	byEmail map[string]string // email -> id
}

var _ auth.UserStore = (*Users)(nil)

// NewUsers creates an empty user store.
func NewUsers() *Users {
	return &Users{
		byID:    make(map[string]auth.User),
		byEmail: make(map[string]string),
	}
}

func (s *Users) FindByEmail(ctx context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *Users) FindByID(ctx context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return cloneUser(u), nil
}

// Insert checks email uniqueness and stores the user under one lock, so concurrent
// registrations for the same email yield exactly one account.
func (s *Users) Insert(ctx context.Context, user auth.User) (auth.User, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return auth.User{}, auth.ErrDuplicateEmail
	}
	now := time.Now().UTC()
	user.ID = ids.New()
	user.Email = email
	user.CreatedAt = now
	user.UpdatedAt = now
	user = cloneUser(user)
	s.byID[user.ID] = user
	s.byEmail[email] = user.ID
	return cloneUser(user), nil
}

// UpdateProfile replaces name, email and password hash. The stored role set is kept.
func (s *Users) UpdateProfile(ctx context.Context, user auth.User) (auth.User, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.byID[user.ID]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	if owner, taken := s.byEmail[email]; taken && owner != user.ID {
		return auth.User{}, auth.ErrDuplicateEmail
	}
	delete(s.byEmail, prev.Email)
	prev.Name = user.Name
	prev.Email = email
	prev.PasswordHash = user.PasswordHash
	prev.UpdatedAt = user.UpdatedAt
	if prev.UpdatedAt.IsZero() {
		prev.UpdatedAt = time.Now().UTC()
	}
	s.byID[prev.ID] = prev
	s.byEmail[email] = prev.ID
	return cloneUser(prev), nil
}

func (s *Users) GrantRole(ctx context.Context, userID string, role auth.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return auth.ErrNotFound
	}
	for _, r := range u.Roles {
		if r == role {
			return nil
		}
	}
	u = cloneUser(u)
	u.Roles = append(u.Roles, role)
	u.UpdatedAt = time.Now().UTC()
	s.byID[userID] = u
	return nil
}

func (s *Users) RevokeRole(ctx context.Context, userID string, role auth.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return auth.ErrNotFound
	}
	kept := make([]auth.RoleAssignment, 0, len(u.Roles))
	for _, r := range u.Roles {
		if r != role {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(u.Roles) {
		return nil
	}
	u.Roles = kept
	u.UpdatedAt = time.Now().UTC()
	s.byID[userID] = u
	return nil
}

// Len reports the number of stored users.
func (s *Users) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func cloneUser(u auth.User) auth.User {
	if u.Roles != nil {
		roles := make([]auth.RoleAssignment, len(u.Roles))
		copy(roles, u.Roles)
		u.Roles = roles
	}
	return u
}
