package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wave-api/internal/config"
	"github.com/wave-api/internal/infrastructure/attest"
)

func TestAttestation(t *testing.T) {
	p, err := attest.Select(&config.Config{AttestationMode: attest.ModeDebug, AttestationDebugToken: "dbg", AttestationTTL: time.Hour}, nil)
	require.NoError(t, err)
	h := Attestation(p)(http.HandlerFunc(okHandler))

	for token, want := range map[string]int{"dbg": http.StatusOK, "": http.StatusUnauthorized, "nope": http.StatusUnauthorized} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			req.Header.Set(AttestationHeader, token)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code, "token %q", token)
	}
}

func TestRequireDevice(t *testing.T) {
	var got string
	h := RequireDevice(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = DeviceIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DeviceHeader, " dev-1 ")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "dev-1", got)
}

func TestRequireDevice_MustMatchAttestedDevice(t *testing.T) {
	p, err := attest.Select(&config.Config{AttestationMode: attest.ModePlatform, AttestationTTL: time.Minute}, newTestProvider(t))
	require.NoError(t, err)
	tok, err := p.Issue(context.Background(), "dev-1")
	require.NoError(t, err)

	var reached bool
	h := Attestation(p)(RequireDevice(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})))

	send := func(device string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(AttestationHeader, tok.Value)
		req.Header.Set(DeviceHeader, device)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusForbidden, send("dev-2"))
	assert.False(t, reached)
	assert.Equal(t, http.StatusOK, send("dev-1"))
	assert.True(t, reached)
}

func TestRequireDevice_UnboundAttestationAcceptsAnyDevice(t *testing.T) {
	p, err := attest.Select(&config.Config{AttestationMode: attest.ModeDebug, AttestationDebugToken: "dbg", AttestationTTL: time.Hour}, nil)
	require.NoError(t, err)
	h := Attestation(p)(RequireDevice(http.HandlerFunc(okHandler)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AttestationHeader, "dbg")
	req.Header.Set(DeviceHeader, "any-device")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
