package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linked-app/linked/backend/internal/models"
	"github.com/linked-app/linked/backend/internal/services"
)

// UserHandler contains HTTP handlers for off-chain profile records.
type UserHandler struct {
	users *services.UserService
}

// NewUserHandler creates a new UserHandler instance.
func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// GetUser handles GET /api/users/{wallet}
// Reports whether the wallet has a profile record.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.CheckUserExists(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.UserExistsResponse{Exists: user != nil, User: user})
}

// CreateUser handles POST /api/users
// Registers the record of a freshly minted profile.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.CreateUser(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// UpdateUser handles PATCH /api/users/{wallet}
// Changes the given fields of the wallet's record.
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateUserRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.UpdateUserProfile(r.Context(), chi.URLParam(r, "wallet"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
