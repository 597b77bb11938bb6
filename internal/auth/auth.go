// Package auth turns bearer tokens into request identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gyaneshwarpardhi/auditlog/internal/event"
)

// ErrInvalidToken is returned for any token that fails signature, algorithm or time checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// ErrNoSecret is returned by Issue when no signing secret is configured.
var ErrNoSecret = errors.New("auth: no signing secret configured")

// Claims carries the actor (subject) and role of a token.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the principal attached to a request.
type Identity struct {
	Actor string
	Role  string
}

// Guest is the identity of unauthenticated callers.
var Guest = Identity{Actor: event.AnonymousActor}

// Manager signs and verifies HS256 tokens.
type Manager struct {
	secret       []byte
	operatorRole string
	now          func() time.Time
}

// NewManager returns a Manager. An empty secret is allowed: every token is then
// rejected and nobody can act as operator.
func NewManager(secret, operatorRole string) *Manager {
	return &Manager{secret: []byte(secret), operatorRole: operatorRole, now: time.Now}
}

// Issue mints a token for actor with the given role, valid for ttl.
func (m *Manager) Issue(actor, role string, ttl time.Duration) (string, error) {
	if len(m.secret) == 0 {
		return "", ErrNoSecret
	}
	now := m.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns the identity it carries.
func (m *Manager) Parse(token string) (Identity, error) {
	if len(m.secret) == 0 {
		return Identity{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Actor: claims.Subject, Role: claims.Role}, nil
}

// IsOperator reports whether id may perform privileged operations.
func (m *Manager) IsOperator(id Identity) bool {
	return m.operatorRole != "" && id.Role == m.operatorRole && id.Actor != event.AnonymousActor
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, or Guest.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(ctxKey{}).(Identity); ok && id.Actor != "" {
		return id
	}
	return Guest
}
