package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareExtractsIdentity(t *testing.T) {
	var got Identity
	var ok bool
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, ok = FromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Auth-User-Id", "user-1")
	r.Header.Set("X-Auth-User-Email", "bob@example.com")
	r.Header.Set("X-Auth-User-Role", "admin")

	Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	require.True(t, ok)
	assert.Equal(t, "user-1", got.ID)
	assert.Equal(t, "bob@example.com", got.Email)
	assert.Equal(t, "admin", got.Role)
}

func TestMiddlewareAnonymousRequest(t *testing.T) {
	var ok bool
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, ok = FromContext(r.Context())
	})

	Middleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, ok)
}

func TestRequireRole(t *testing.T) {
	protected := RequireRole("admin", "super_admin")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name string
		role string
		want int
	}{
		{"admin allowed", "admin", http.StatusNoContent},
		{"super admin allowed", "super_admin", http.StatusNoContent},
		{"case insensitive", "ADMIN", http.StatusNoContent},
		{"member rejected", "member", http.StatusForbidden},
		{"empty role rejected", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r = r.WithContext(WithIdentity(r.Context(), Identity{ID: "u", Role: tt.role}))
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, r)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireRoleUnauthenticated(t *testing.T) {
	protected := RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
