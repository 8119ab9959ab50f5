package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/wave-api/internal/infrastructure/attest"
	"github.com/wave-api/internal/transport/http/middleware"
)

// AttestationHandler issues attestation tokens to devices.
type AttestationHandler struct {
	provider attest.Provider
}

func NewAttestationHandler(p attest.Provider) *AttestationHandler {
	return &AttestationHandler{provider: p}
}

func (h *AttestationHandler) Issue(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimSpace(r.Header.Get(middleware.DeviceHeader))
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "missing "+middleware.DeviceHeader+" header")
		return
	}
	tok, err := h.provider.Issue(r.Context(), deviceID)
	switch {
	case errors.Is(err, attest.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, "attestation tokens are not issued in "+h.provider.Mode()+" mode")
		return
	case err != nil:
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AttestationEnvelope{Token: tok})
}
