package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/apierr"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/auth"
)

type contextKey string

const sessionContextKey contextKey = "session"

// Admin rejects requests without a valid admin session or token.
// With no token hashes configured every admin route answers 403.
func Admin(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authService.Enabled() {
				apierr.WriteError(w, auth.ErrAdminDisabled)
				return
			}

			token := extractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			session, err := authService.ValidateSession(token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken extracts the session token from the request
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	// Fall back to cookie
	cookie, err := r.Cookie("session")
	if err == nil {
		return cookie.Value
	}

	return ""
}

// ExtractToken returns the bearer token or session cookie of the request
func ExtractToken(r *http.Request) string {
	return extractToken(r)
}

// GetSession returns the admin session from the request context
func GetSession(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(sessionContextKey).(*auth.Session)
	return session
}
