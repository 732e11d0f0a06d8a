// Package middleware provides HTTP middleware for authentication.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

const dealerIDKey ContextKey = "dealerID"

// TokenValidator validates a bearer token and yields its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (DealerIDGetter, error)
}

// DealerIDGetter extracts the dealer ID from token claims.
type DealerIDGetter interface {
	GetDealerID() uuid.UUID
}

// BearerToken extracts the bearer token from an Authorization header.
// The "Bearer" prefix is case-insensitive.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// Auth validates the JWT on every request and stores the dealer ID in the
// request context.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), dealerIDKey, claims.GetDealerID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetDealerID extracts the authenticated dealer ID from the request context.
func GetDealerID(r *http.Request) (uuid.UUID, error) {
	id, ok := r.Context().Value(dealerIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("dealer ID not found in request context")
	}
	return id, nil
}

// WithDealerID returns a context carrying the dealer ID, for tests.
func WithDealerID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, dealerIDKey, id)
}
