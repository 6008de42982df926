package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "jwt-pizza"

// Claims is the JWT payload of a session token.
type Claims struct {
	Roles []RoleAssignment `json:"roles"`
	jwt.RegisteredClaims
}

// SessionToken is an issued bearer token.
type SessionToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenInfo is what a verified token says about its holder.
type TokenInfo struct {
	ID        string
	UserID    string
	Roles     []RoleAssignment
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Actor returns the identity carried by the token.
func (t TokenInfo) Actor() Actor {
	return Actor{UserID: t.UserID, Roles: cloneRoles(t.Roles)}
}

// Codec signs and verifies HS256 session tokens. It holds no mutable state.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
	}
}

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec builds a codec with the signing secret and a fixed token lifetime.
func NewCodec(secret string, ttl time.Duration, opts ...CodecOption) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be greater than zero")
	}
	c := &Codec{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL reports the configured token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a token embedding the user's id and current role set.
func (c *Codec) Issue(user User) (SessionToken, error) {
	userID := strings.TrimSpace(user.ID)
	if userID == "" {
		return SessionToken{}, errors.New("auth: user id is required")
	}
	now := c.now().UTC()
	claims := Claims{
		Roles: cloneRoles(user.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return SessionToken{}, fmt.Errorf("sign token: %w", err)
	}
	return SessionToken{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Parse verifies signature and expiry. It fails with ErrMalformedToken, ErrBadSignature
// or ErrExpired (valid only while now < expiresAt).
func (c *Codec) Parse(value string) (TokenInfo, error) {
	return c.parse(value,
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
	)
}

// Inspect verifies the signature and structure but ignores time-based claims, so an
// expired token can still be recognised as one of ours.
func (c *Codec) Inspect(value string) (TokenInfo, error) {
	info, err := c.parse(value, jwt.WithoutClaimsValidation())
	if err != nil {
		return TokenInfo{}, err
	}
	if info.ExpiresAt.IsZero() {
		return TokenInfo{}, ErrMalformedToken
	}
	return info, nil
}

func (c *Codec) parse(value string, opts ...jwt.ParserOption) (TokenInfo, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return TokenInfo{}, ErrMalformedToken
	}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := jwt.ParseWithClaims(value, &Claims{}, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return TokenInfo{}, classify(err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return TokenInfo{}, ErrMalformedToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return TokenInfo{}, ErrMalformedToken
	}
	info := TokenInfo{
		ID:     claims.ID,
		UserID: claims.Subject,
		Roles:  cloneRoles(claims.Roles),
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}
