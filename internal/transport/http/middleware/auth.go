package middleware

import (
	"context"
	"net/http"
	"strings"

	jwtinfra "github.com/wave-api/internal/infrastructure/jwt"
)

// TokenVerifier validates a credential token.
type TokenVerifier interface {
	VerifyToken(token string) (*jwtinfra.Claims, error)
}

// Auth returns middleware that validates the Bearer credential and injects its claims into context.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			claims, err := verifier.VerifyToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(jwtinfra.WithClaims(r.Context(), claims)))
		})
	}
}

// ClaimsFromContext extracts credential claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	return jwtinfra.ClaimsFromContext(ctx)
}
