package auth

import (
	"context"
	"net/http"
	"strings"
)

// Identity is the caller as established by the platform gateway. The
// gateway terminates auth and forwards the verified subject in headers.
type Identity struct {
	ID    string
	Email string
	Role  string
}

type contextKey struct{}

var identityKey = contextKey{}

const (
	headerUserID    = "X-Auth-User-Id"
	headerUserEmail = "X-Auth-User-Email"
	headerUserRole  = "X-Auth-User-Role"
)

// FromContext returns the identity attached by Middleware, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// WithIdentity attaches an identity to the context. Exposed for tests.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Middleware reads the gateway identity headers into the request context.
// Requests without headers pass through anonymously; enforcement happens
// at RequireRole.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			ID:    strings.TrimSpace(r.Header.Get(headerUserID)),
			Email: strings.TrimSpace(r.Header.Get(headerUserEmail)),
			Role:  strings.TrimSpace(r.Header.Get(headerUserRole)),
		}
		if id.ID != "" || id.Email != "" || id.Role != "" {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole gates a subtree to callers holding one of the given roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[strings.ToLower(role)] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[strings.ToLower(id.Role)]; !ok {
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
