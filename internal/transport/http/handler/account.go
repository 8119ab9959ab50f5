package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wave-api/internal/application/account"
)

// AccountHandler handles account lifecycle endpoints.
type AccountHandler struct {
	svc account.Service
}

func NewAccountHandler(svc account.Service) *AccountHandler { return &AccountHandler{svc: svc} }

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Current(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionEnvelope{Session: sess})
}

// Toggle handles PUT /account/{deactivate|reactivate}.
func (h *AccountHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var fn = h.svc.Deactivate
	switch chi.URLParam(r, "action") {
	case "deactivate":
	case "reactivate":
		fn = h.svc.Reactivate
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	sess, err := fn(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionEnvelope{Session: sess})
}

// Delete handles POST /account/delete/{request|confirm}.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		handle, err := h.svc.RequestDeletion(r.Context())
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, DeletionEnvelope{Handle: handle, Message: "verification code sent"})
	case "confirm":
		var body struct {
			Handle string `json:"handle"`
			Code   string `json:"code"`
		}
		if err := decode(r, &body); err != nil {
			httpError(w, err)
			return
		}
		if err := h.svc.ConfirmDeletion(r.Context(), body.Handle, body.Code); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "account deleted"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
