// Package token issues and verifies the signed session credential carried in the
// "token" cookie.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingEmail  = errors.New("identity email is required")
	ErrSecretTooWeak = errors.New("signing secret is too short")
)

const minSecretLength = 16

// Identity is the authenticated principal embedded in a credential.
type Identity struct {
	Email      string
	Attributes map[string]any
}

// Claims embeds RegisteredClaims for sub, iat, exp and jti.
type Claims struct {
	jwt.RegisteredClaims
	Email      string         `json:"email"`
	Attributes map[string]any `json:"attrs,omitempty"`
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
	parser *jwt.Parser
}

func NewIssuer(secret string, ttl time.Duration, clock clockwork.Clock) (*Issuer, error) {
	if len(secret) < minSecretLength {
		return nil, ErrSecretTooWeak
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(clock.Now),
		),
	}, nil
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a credential for id and returns it with its expiry.
func (i *Issuer) Issue(id Identity) (string, time.Time, error) {
	if id.Email == "" {
		return "", time.Time{}, ErrMissingEmail
	}

	now := i.clock.Now()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Email:      id.Email,
		Attributes: id.Attributes,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the embedded identity.
func (i *Issuer) Verify(raw string) (*Identity, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	var claims Claims
	_, err := i.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	email := claims.Email
	if email == "" {
		email = claims.Subject
	}
	if email == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	return &Identity{Email: email, Attributes: claims.Attributes}, nil
}
