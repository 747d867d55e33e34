package server

import (
	"context"
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyPrincipal stores the verified local user
	ContextKeyPrincipal ContextKey = "principal"
)

// PrincipalFromContext returns the user attached by RequireSession
func PrincipalFromContext(ctx context.Context) (*users.User, bool) {
	user, ok := ctx.Value(ContextKeyPrincipal).(*users.User)
	return user, ok && user != nil
}

// WithPrincipal attaches a verified user to ctx
func WithPrincipal(ctx context.Context, user *users.User) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, user)
}

// RequireSession verifies the session cookies, refreshing them when needed,
// and attaches the principal. Downstream handlers never run without one.
func (s *Server) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.gate.Authenticate(r.Context(), w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r.WithContext(WithPrincipal(r.Context(), user)))
	}
}

// RestrictTo allows the request through only when the principal holds one of
// roles. It must run after RequireSession.
func RestrictTo(roles ...users.RoleType) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, fmt.Errorf("%w: no principal", apperrors.ErrForbidden))
				return
			}
			if !user.HasRole(roles...) {
				writeError(w, fmt.Errorf("%w: role %s not allowed", apperrors.ErrForbidden, user.Role))
				return
			}
			next(w, r)
		}
	}
}
