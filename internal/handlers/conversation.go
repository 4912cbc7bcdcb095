package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linked-app/linked/backend/internal/chat"
	"github.com/linked-app/linked/backend/internal/models"
	"github.com/linked-app/linked/backend/internal/services"
	"go.uber.org/zap"
)

// ConversationHandler contains HTTP handlers for conversation sessions.
// A session is one open chat screen; it keeps live delivery running until the
// UI closes it or stops sending heartbeats.
type ConversationHandler struct {
	sessions *services.SessionService
	log      *zap.Logger
}

// NewConversationHandler creates a new ConversationHandler instance.
func NewConversationHandler(sessions *services.SessionService, log *zap.Logger) *ConversationHandler {
	return &ConversationHandler{sessions: sessions, log: log}
}

// Open handles POST /api/conversations
// Loads the history of {self, other} and starts live delivery.
// A history failure still opens the session; load_error tells the UI to retry.
func (h *ConversationHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req models.OpenConversationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, conv, err := h.sessions.Open(r.Context(), req.Self, req.Other)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, snapshot(session, conv))
}

// Get handles GET /api/conversations/{id}
// Returns the session with its current ordered message list.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, conv, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot(session, conv))
}

// Reload handles POST /api/conversations/{id}/reload
// Retries the history fetch and merges it into the message list.
func (h *ConversationHandler) Reload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, conv, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	// The outcome is reported through load_error
	if err := conv.Load(r.Context(), session.Self, session.Other); err != nil {
		h.log.Warn("[Conversation] Reload failed", zap.String("session", id), zap.Error(err))
	}
	_ = h.sessions.Heartbeat(id)

	writeJSON(w, http.StatusOK, snapshot(session, conv))
}

// Heartbeat handles POST /api/conversations/{id}/heartbeat
// Updates the session's activity timestamp to prevent cleanup.
func (h *ConversationHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Heartbeat(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Close handles DELETE /api/conversations/{id}
// Cancels live delivery and forgets the session.
func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func snapshot(session models.Session, conv *chat.Conversation) models.ConversationResponse {
	resp := models.ConversationResponse{
		Session:  session,
		Mode:     conv.Mode().String(),
		Messages: conv.Messages(),
	}
	if resp.Messages == nil {
		resp.Messages = []models.Message{}
	}
	if err := conv.LoadError(); err != nil {
		resp.LoadError = err.Error()
	}
	return resp
}
