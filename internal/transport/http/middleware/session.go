package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wave-api/internal/domain"
)

// SessionResolver loads the session behind the request's credential claims.
type SessionResolver interface {
	CurrentSession(ctx context.Context) (*domain.Session, error)
}

type sessionKey struct{}

// RequireSession must run after Auth. It rejects credentials whose identity
// no longer exists, so a deleted account cannot read or write messages.
func RequireSession(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := resolver.CurrentSession(r.Context())
			switch {
			case errors.Is(err, domain.ErrNotFound):
				writeJSONError(w, http.StatusNotFound, "no current session")
				return
			case err != nil:
				slog.Error("resolve session", "err", err)
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
		})
	}
}

// SessionFromContext returns the session stored by RequireSession.
func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*domain.Session)
	return s, ok && s != nil
}
