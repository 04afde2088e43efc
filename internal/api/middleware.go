/**
 * @description
 * This file contains custom middleware for the HTTP router. The auth middleware
 * resolves the bearer token to a directory user and stores it in the request
 * context for the handlers.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - internal/app: For token validation and the user lookup.
 */

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fundlink/fundlink-service/internal/app"
	"github.com/fundlink/fundlink-service/internal/domain"
)

// contextKey is a custom type for the context keys to avoid collisions.
type contextKey string

const (
	userContextKey   contextKey = "user"
	claimsContextKey contextKey = "claims"
)

// Authenticator resolves a bearer token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, tokenString string) (*domain.User, *app.Claims, error)
}

// AuthMiddleware creates a middleware that validates session tokens.
func AuthMiddleware(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			// Extract the token from "Bearer <token>"
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			user, claims, err := auth.Authenticate(r.Context(), tokenString)
			if err != nil {
				if errors.Is(err, app.ErrInvalidToken) {
					writeError(w, http.StatusUnauthorized, "Invalid or expired token")
					return
				}
				logger.Error("failed to authenticate request", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusInternalServerError, "Unable to authenticate request")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			ctx = context.WithValue(ctx, claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext retrieves the authenticated user from the request context.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	return user, ok && user != nil
}

// ClaimsFromContext retrieves the validated token claims from the request context.
func ClaimsFromContext(ctx context.Context) (*app.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*app.Claims)
	return claims, ok && claims != nil
}
