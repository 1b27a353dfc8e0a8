// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/studyverse/chat-platform/internal/identity"
	"github.com/studyverse/chat-platform/internal/model"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// IdentityKey is the context key for the authenticated identity.
	IdentityKey ContextKey = "identity"
)

// Auth creates authentication middleware. The bearer token is resolved to a
// full identity, so downstream handlers work with internal user ids without
// touching the token again.
func Auth(resolver identity.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				http.Error(w, `{"error":"invalid authorization header format"}`, http.StatusUnauthorized)
				return
			}

			ident, err := resolver.Resolve(r.Context(), parts[1])
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity gets the authenticated identity from context. The second
// return is false on unauthenticated requests.
func GetIdentity(ctx context.Context) (model.Identity, bool) {
	if v, ok := ctx.Value(IdentityKey).(*model.Identity); ok && v != nil {
		return *v, true
	}
	return model.Identity{}, false
}

// GetUserID gets the external user ID from context, or "" when the request
// is unauthenticated.
func GetUserID(ctx context.Context) string {
	if ident, ok := GetIdentity(ctx); ok {
		return ident.ExternalID
	}
	return ""
}
