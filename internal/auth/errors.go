package auth

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrDuplicateEmail     = errors.New("auth: email already registered")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrNotFound           = errors.New("auth: not found")
)

// Codec failures. The request gate collapses all of them into ErrUnauthorized.
var (
	ErrMalformedToken = errors.New("auth: malformed token")
	ErrBadSignature   = errors.New("auth: bad token signature")
	ErrExpired        = errors.New("auth: token expired")
)

// DeniedError is a policy decision that refused an action. It unwraps to ErrForbidden;
// Reason is meant for logs only.
type DeniedError struct {
	Action Action
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("auth: %s denied: %s", e.Action, e.Reason)
}

func (e *DeniedError) Unwrap() error { return ErrForbidden }
