package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wave-api/internal/application/verification"
	"github.com/wave-api/internal/transport/http/middleware"
)

const keepAliveInterval = 15 * time.Second

// PhoneAuthHandler exposes the per-device verification machine.
type PhoneAuthHandler struct {
	registry *verification.Registry
}

func NewPhoneAuthHandler(registry *verification.Registry) *PhoneAuthHandler {
	return &PhoneAuthHandler{registry: registry}
}

type phoneAuthRequest struct {
	PhoneNumber *string  `json:"phone_number"`
	CountryISO  string   `json:"country_iso"`
	Digits      []string `json:"digits"`
	Index       *int     `json:"index"`
	Digit       string   `json:"digit"`
}

func (h *PhoneAuthHandler) machine(r *http.Request) *verification.Machine {
	deviceID, _ := middleware.DeviceIDFromContext(r.Context())
	return h.registry.Get(deviceID, r.Header.Get(middleware.RegionHeader))
}

func (h *PhoneAuthHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PhoneAuthEnvelope{State: h.machine(r).Snapshot()})
}

func (h *PhoneAuthHandler) Action(w http.ResponseWriter, r *http.Request) {
	var body phoneAuthRequest
	if err := decode(r, &body); err != nil {
		httpError(w, err)
		return
	}
	m := h.machine(r)
	ctx := r.Context()

	var err error
	switch chi.URLParam(r, "action") {
	case "input":
		if body.CountryISO != "" {
			err = m.SelectCountry(body.CountryISO)
		}
		if err == nil && body.PhoneNumber != nil {
			m.SetPhoneInput(*body.PhoneNumber)
		}
	case "request":
		if body.PhoneNumber != nil {
			err = m.RequestCode(ctx, *body.PhoneNumber)
		} else {
			err = m.RequestCodeForInput(ctx)
		}
	case "resend":
		err = m.ResendCode(ctx)
	case "code":
		if body.Index != nil {
			err = m.SetDigit(*body.Index, body.Digit)
		} else {
			err = m.SetCode(body.Digits)
		}
	case "verify":
		digits := body.Digits
		if len(digits) == 0 {
			if p := m.Snapshot().Pending; p != nil {
				digits = p.Code[:]
			}
		}
		if err = m.SubmitCode(ctx, digits); err == nil {
			h.writeCredential(w, m)
			return
		}
	case "cancel":
		m.Cancel(ctx)
	case "resume":
		_, err = m.Resume(ctx)
	case "reset":
		m.Reset(ctx)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	if err != nil {
		status, msg := errorStatus(err)
		writeJSON(w, status, PhoneAuthEnvelope{State: m.Snapshot(), Error: msg, ErrorCode: status})
		return
	}
	writeJSON(w, http.StatusOK, PhoneAuthEnvelope{State: m.Snapshot()})
}

func (h *PhoneAuthHandler) writeCredential(w http.ResponseWriter, m *verification.Machine) {
	env := PhoneAuthEnvelope{State: m.Snapshot()}
	if cred := m.Credential(); cred != nil {
		env.Bearer = cred.Token
		env.ExpiresAt = cred.ExpiresAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, env)
}

// Events streams machine snapshots as server-sent events until the client disconnects.
func (h *PhoneAuthHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	// streams outlive the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	updates, cancel := h.machine(r).Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case snap, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				return
			}
			fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Version, data)
			flusher.Flush()
		}
	}
}
