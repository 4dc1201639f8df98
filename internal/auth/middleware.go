package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/nwehbe/waterops/internal/storage"
)

type contextKey string

const TokenContextKey contextKey = "token"

// Middleware resolves a Bearer token into the request context. Requests
// without an Authorization header pass through unauthenticated; handlers
// that require a subject reject them.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
			return
		}

		token, err := s.ValidateToken(r.Context(), parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), TokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TokenFrom extracts the authenticated token, if any.
func TokenFrom(r *http.Request) *storage.Token {
	token, _ := r.Context().Value(TokenContextKey).(*storage.Token)
	return token
}

// Require enforces that the request's subject may perform act on obj.
// Returns the token when allowed, nil after writing the error otherwise.
func (s *Service) Require(w http.ResponseWriter, r *http.Request, obj, act string) *storage.Token {
	token := TokenFrom(r)
	if token == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil
	}
	allowed, err := s.Enforce(token.Role, obj, act)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil
	}
	if !allowed {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil
	}
	return token
}
