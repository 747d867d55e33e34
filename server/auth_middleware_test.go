package server_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-broker/server"
	"github.com/jrsteele09/go-session-broker/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestrictTo(t *testing.T) {
	admin := users.NewUser("u-1", "sub-1", "a@example.com", time.Now())
	admin.Role = users.RoleAdmin
	member := users.NewUser("u-2", "sub-2", "m@example.com", time.Now())

	tests := []struct {
		name      string
		principal *users.User
		roles     []users.RoleType
		status    int
	}{
		{"no principal", nil, []users.RoleType{users.RoleAdmin}, http.StatusForbidden},
		{"role not allowed", member, []users.RoleType{users.RoleAdmin}, http.StatusForbidden},
		{"role allowed", admin, []users.RoleType{users.RoleAdmin}, http.StatusOK},
		{"any of several", member, []users.RoleType{users.RoleAdmin, users.RoleUser}, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			handler := server.RestrictTo(tc.roles...)(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
			if tc.principal != nil {
				req = req.WithContext(server.WithPrincipal(req.Context(), tc.principal))
			}
			rec := httptest.NewRecorder()
			handler(rec, req)

			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.status == http.StatusOK, called)
		})
	}
}

func TestPrincipalFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := server.PrincipalFromContext(req.Context())
	assert.False(t, ok)

	user := users.NewUser("u-1", "sub-1", "a@example.com", time.Now())
	got, ok := server.PrincipalFromContext(server.WithPrincipal(req.Context(), user))
	require.True(t, ok)
	assert.Equal(t, user, got)
}

func TestChainMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.HandlerFunc) http.HandlerFunc {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next(w, r)
			}
		}
	}
	h := server.ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}, mw("first"), mw("second"))

	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}
