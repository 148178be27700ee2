package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telehealth-platform/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
)

// Connection-level rejection reasons. These messages are sent to clients.
var (
	ErrMissingToken   = apperr.New(apperr.KindAuthentication, "missing token")
	ErrMalformedToken = apperr.New(apperr.KindAuthentication, "malformed token")
	ErrExpiredToken   = apperr.New(apperr.KindAuthentication, "token expired")
	ErrUnknownRole    = apperr.New(apperr.KindAuthentication, "unknown role")
	ErrUserNotFound   = apperr.New(apperr.KindAuthentication, "user not found")
)

// UserDirectory answers whether a user still exists with the given role.
type UserDirectory interface {
	UserExists(ctx context.Context, userID, role string) (bool, error)
}

// Resolver turns a bearer credential into an Identity or a specific failure reason.
type Resolver struct {
	tokens    *Manager
	users     UserDirectory
	knownRole func(role string) bool
	clock     func() time.Time
}

// NewResolver wires token verification to a user directory. knownRole is
// usually rbac.IsKnownRole; rbac depends on this package so it is injected.
func NewResolver(tokens *Manager, users UserDirectory, knownRole func(role string) bool) *Resolver {
	return &Resolver{tokens: tokens, users: users, knownRole: knownRole, clock: time.Now}
}

func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	claims, err := r.tokens.Verify(token, TokenTypeAccess, r.clock())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, apperr.Wrap(ErrExpiredToken, err)
		}
		return Identity{}, apperr.Wrap(ErrMalformedToken, err)
	}

	if r.knownRole != nil && !r.knownRole(claims.Role) {
		return Identity{}, ErrUnknownRole
	}

	if r.users != nil {
		ok, err := r.users.UserExists(ctx, claims.UserID, claims.Role)
		if err != nil {
			return Identity{}, fmt.Errorf("user lookup: %w", err)
		}
		if !ok {
			return Identity{}, ErrUserNotFound
		}
	}

	return Identity{UserID: claims.UserID, Role: claims.Role}, nil
}
