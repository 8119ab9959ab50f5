package handler

import (
	"net/http"

	"github.com/wave-api/internal/application/chat"
	"github.com/wave-api/internal/domain"
	"github.com/wave-api/internal/pkg/validate"
	"github.com/wave-api/internal/transport/http/middleware"
)

// MessageHandler serves the current session's message log.
type MessageHandler struct {
	svc chat.Service
}

func NewMessageHandler(svc chat.Service) *MessageHandler { return &MessageHandler{svc: svc} }

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	msgs, err := h.svc.LoadHistory(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessagesEnvelope{Data: msgs})
}

func (h *MessageHandler) Append(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.AppendMessageRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpError(w, err)
		return
	}
	msg, err := h.svc.AppendMessage(r.Context(), claims.UserID, req.Text, claims.PhoneNumber, false)
	h.writeComposed(w, msg, err)
}

func (h *MessageHandler) StartChat(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.StartChatRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	msg, err := h.svc.StartChatGreeting(r.Context(), claims.UserID, req.ContactName)
	h.writeComposed(w, msg, err)
}

func (h *MessageHandler) writeComposed(w http.ResponseWriter, msg *domain.Message, err error) {
	if err != nil {
		status, text := errorStatus(err)
		writeJSON(w, status, ChatMessageEnvelope{Data: msg, Error: text, ErrorCode: status})
		return
	}
	writeJSON(w, http.StatusCreated, ChatMessageEnvelope{Data: msg})
}
