package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
)

// Role is a platform role. Admin is global; Franchisee is scoped to a franchise id.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleFranchisee Role = "franchisee"
	RoleDiner      Role = "diner"
)

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleFranchisee, RoleDiner:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
}

// RoleAssignment grants a role, optionally scoped to a resource id.
type RoleAssignment struct {
	Role     Role   `json:"role"`
	ObjectID string `json:"objectId,omitempty"`
}

// User is the credential record owned by the UserStore.
type User struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Email        string           `json:"email"`
	PasswordHash string           `json:"-"`
	Roles        []RoleAssignment `json:"roles"`
	CreatedAt    time.Time        `json:"-"`
	UpdatedAt    time.Time        `json:"-"`
}

// HasRole reports whether the user holds role with any scope.
func (u User) HasRole(role Role) bool {
	return hasRole(u.Roles, role)
}

// HasScopedRole reports whether the user holds role scoped to objectID.
func (u User) HasScopedRole(role Role, objectID string) bool {
	a := Actor{UserID: u.ID, Roles: u.Roles}
	return a.HasScopedRole(role, objectID)
}

// Actor is the authenticated identity attached to a request: a user id plus the role
// snapshot taken when the token was issued.
type Actor struct {
	UserID string
	Roles  []RoleAssignment
}

// IsAdmin reports whether the actor holds the global Admin role.
func (a *Actor) IsAdmin() bool {
	return a != nil && hasRole(a.Roles, RoleAdmin)
}

// HasScopedRole reports whether the actor holds role scoped to objectID. A scoped role
// without a matching object id confers nothing.
func (a *Actor) HasScopedRole(role Role, objectID string) bool {
	if a == nil || objectID == "" {
		return false
	}
	for _, r := range a.Roles {
		if r.Role == role && r.ObjectID == objectID {
			return true
		}
	}
	return false
}

func hasRole(roles []RoleAssignment, role Role) bool {
	for _, r := range roles {
		if r.Role == role {
			return true
		}
	}
	return false
}

// ProfileUpdate carries the mutable user fields; nil means unchanged.
type ProfileUpdate struct {
	Name     *string
	Email    *string
	Password *string
}

// NormalizeEmail lower-cases and trims an address and rejects malformed input.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strfmt.IsEmail(email) {
		return "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return email, nil
}

func cloneRoles(roles []RoleAssignment) []RoleAssignment {
	if len(roles) == 0 {
		return nil
	}
	out := make([]RoleAssignment, len(roles))
	copy(out, roles)
	return out
}
