// Package middleware provides HTTP middleware for actor authentication.
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

// actorIDKey is the context key for storing the authenticated actor ID.
const actorIDKey ContextKey = "actorID"

// TokenValidator is an interface for validating JWT tokens.
// This allows the middleware to work with any JWT service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (ActorGetter, error)
}

// ActorGetter is an interface for extracting the actor ID from token claims.
type ActorGetter interface {
	GetActorID() uuid.UUID
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware creates middleware that validates JWT tokens and adds the actor ID to request context.
// Requests without a valid token are rejected with 401.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := BearerToken(r)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), actorIDKey, claims.GetActorID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth adds the actor ID to the request context when a valid token is present
// and passes every request through. Malformed or invalid tokens are rejected with 401.
func OptionalAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			AuthMiddleware(validator)(next).ServeHTTP(w, r)
		})
	}
}

// GetActorID extracts the authenticated actor ID from the request context.
func GetActorID(r *http.Request) (uuid.UUID, error) {
	actorID, ok := r.Context().Value(actorIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("actor ID not found in request context")
	}
	return actorID, nil
}

// ActorIDKey returns the context key for the actor ID (for testing purposes).
func ActorIDKey() ContextKey {
	return actorIDKey
}
