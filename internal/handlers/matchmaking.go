package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linked-app/linked/backend/internal/services"
)

// MatchmakingHandler serves the likes dashboard and the profile deck.
type MatchmakingHandler struct {
	matchmaking *services.MatchmakingService
}

// NewMatchmakingHandler creates a new MatchmakingHandler instance. A nil
// service means no contract is configured.
func NewMatchmakingHandler(matchmaking *services.MatchmakingService) *MatchmakingHandler {
	return &MatchmakingHandler{matchmaking: matchmaking}
}

// GetLikes handles GET /api/likes/{wallet}
func (h *MatchmakingHandler) GetLikes(w http.ResponseWriter, r *http.Request) {
	if h.matchmaking == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "contract reader is not configured"})
		return
	}

	likes, err := h.matchmaking.Likes(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, likes)
}

// Discover handles GET /api/discover/{wallet}
// Returns every other profile holder for the match page.
func (h *MatchmakingHandler) Discover(w http.ResponseWriter, r *http.Request) {
	if h.matchmaking == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "contract reader is not configured"})
		return
	}

	deck, err := h.matchmaking.Discover(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deck)
}
