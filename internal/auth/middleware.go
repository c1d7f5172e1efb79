package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/mstrand/foyer/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing session claims in context
	SessionContextKey contextKey = "session"
)

// Middleware extracts the session from the request (session cookie first,
// then a bearer token) and injects its claims into the context. Requests
// without a valid session pass through unauthenticated; access control
// happens where the account identity is actually needed.
func Middleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractToken(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				// An invalid or expired session is the same as none.
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) string {
	if token, err := GetSessionCookie(r); err == nil && token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// ClaimsFromRequest returns the session claims, or nil when the request is
// unauthenticated.
func ClaimsFromRequest(r *http.Request) *models.SessionClaims {
	claims, _ := r.Context().Value(SessionContextKey).(*models.SessionClaims)
	return claims
}

// AccountID returns the authenticated account id, or "" when the request
// is unauthenticated.
func AccountID(r *http.Request) string {
	if claims := ClaimsFromRequest(r); claims != nil {
		return claims.AccountID
	}
	return ""
}
