package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/wave-api/internal/infrastructure/attest"
)

const AttestationHeader = "X-Attestation-Token"

type attestationKey struct{}

// Attestation rejects requests whose attestation token does not verify and
// stores the verified attestation in context.
func Attestation(p attest.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, err := p.Verify(r.Context(), r.Header.Get(AttestationHeader))
			if err != nil {
				slog.Debug("attestation rejected", "mode", p.Mode(), "ip", clientIP(r), "err", err)
				writeJSONError(w, http.StatusUnauthorized, "invalid attestation token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), attestationKey{}, a)))
		})
	}
}

// AttestationFromContext returns the attestation stored by Attestation.
func AttestationFromContext(ctx context.Context) (*attest.Attestation, bool) {
	a, ok := ctx.Value(attestationKey{}).(*attest.Attestation)
	return a, ok && a != nil
}
