package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linked-app/linked/backend/internal/services"
)

// ContactsHandler serves the chat sidebar.
type ContactsHandler struct {
	contacts *services.ContactService
}

// NewContactsHandler creates a new ContactsHandler instance. A nil service
// means no contract is configured.
func NewContactsHandler(contacts *services.ContactService) *ContactsHandler {
	return &ContactsHandler{contacts: contacts}
}

// ListContacts handles GET /api/contacts/{wallet}
// Returns the wallet's matches with profile and last message, newest first.
func (h *ContactsHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	if h.contacts == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "contract reader is not configured"})
		return
	}

	contacts, err := h.contacts.Contacts(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}
