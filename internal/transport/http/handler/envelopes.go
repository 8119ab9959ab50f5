package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/wave-api/internal/application/verification"
	"github.com/wave-api/internal/domain"
	"github.com/wave-api/internal/infrastructure/attest"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// SessionEnvelope wraps current-session responses.
type SessionEnvelope struct {
	Session *domain.Session `json:"session,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// PhoneAuthEnvelope wraps verification machine responses. Bearer is set only
// by a successful verify.
type PhoneAuthEnvelope struct {
	State     verification.Snapshot `json:"state"`
	Bearer    string                `json:"Bearer,omitempty"`
	ExpiresAt string                `json:"expires_at,omitempty"`
	Error     string                `json:"error,omitempty"`
	ErrorCode int                   `json:"error_code,omitempty"`
}

// MessagesEnvelope wraps message log responses.
type MessagesEnvelope struct {
	Data  []domain.Message `json:"data"`
	Error string           `json:"error,omitempty"`
}

// ChatMessageEnvelope wraps a single composed message. On a failed write the
// message is still returned alongside the error.
type ChatMessageEnvelope struct {
	Data      *domain.Message `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode int             `json:"error_code,omitempty"`
}

// CountriesEnvelope wraps the country catalog.
type CountriesEnvelope struct {
	Data []domain.CountryCode `json:"data"`
}

// AttestationEnvelope wraps an issued attestation token.
type AttestationEnvelope struct {
	Token *attest.Token `json:"attestation,omitempty"`
	Error string        `json:"error,omitempty"`
}

// DeletionEnvelope wraps the handle returned when account deletion is requested.
type DeletionEnvelope struct {
	Handle  string `json:"handle"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

// errorStatus maps domain errors to an HTTP status and the text shown to the client.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, domain.ErrProvider):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, verification.ErrSuperseded):
		return http.StatusConflict, err.Error()
	default:
		slog.Error("request failed", "err", err)
		return http.StatusInternalServerError, "internal server error"
	}
}

func httpError(w http.ResponseWriter, err error) {
	status, msg := errorStatus(err)
	writeError(w, status, msg)
}

func decode(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return domain.NewValidationError("invalid request body")
	}
	return nil
}
