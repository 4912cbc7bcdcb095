package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linked-app/linked/backend/internal/apperr"
	"github.com/linked-app/linked/backend/internal/models"
	"github.com/linked-app/linked/backend/internal/services"
	"go.uber.org/zap"
)

// MessageHandler contains HTTP handlers for message operations.
// Delivery of new messages happens over the websocket or by re-reading the
// session snapshot; sending goes through the session's conversation.
type MessageHandler struct {
	sessions *services.SessionService
	log      *zap.Logger
}

// NewMessageHandler creates a new MessageHandler instance.
func NewMessageHandler(sessions *services.SessionService, log *zap.Logger) *MessageHandler {
	return &MessageHandler{sessions: sessions, log: log}
}

// SendMessage handles POST /api/conversations/{id}/messages
// Stores a message from the session's self to its other. The stored message
// is echoed with 202 Accepted; it joins the message list once delivery brings
// it back. A failed send returns the preserved draft.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, conv, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req models.SendMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := conv.Send(r.Context(), req.Body)
	if err != nil {
		resp := models.SendMessageError{
			Error:     err.Error(),
			Retryable: apperr.IsPersistence(err) || errors.Is(err, apperr.ErrSendInProgress),
			Draft:     conv.Draft(),
		}
		h.log.Info("[Message] Send failed", zap.String("session", id), zap.Error(err))
		writeJSON(w, statusOf(err), resp)
		return
	}
	_ = h.sessions.Heartbeat(id)

	h.log.Debug("[Message] Sent message", zap.String("session", id), zap.String("id", msg.ID))
	writeJSON(w, http.StatusAccepted, models.SendMessageResponse{Message: msg})
}

// GetMessages handles GET /api/conversations/{id}/messages
// Returns the session's message list ordered by created_at.
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	_, conv, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	messages := conv.Messages()
	if messages == nil {
		messages = []models.Message{}
	}
	writeJSON(w, http.StatusOK, models.GetMessagesResponse{Messages: messages})
}
