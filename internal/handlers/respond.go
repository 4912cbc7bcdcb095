package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/linked-app/linked/backend/internal/apperr"
)

// validate checks request bodies against their struct tags.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON is a helper function to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// statusOf maps an error to the HTTP status reported to the UI.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrSendInProgress), errors.Is(err, apperr.ErrNotLoaded):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrClosed):
		return http.StatusGone
	case apperr.IsValidation(err):
		return http.StatusBadRequest
	case apperr.IsPersistence(err), apperr.IsTransientDelivery(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), ErrorResponse{Error: err.Error()})
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("decode request", fmt.Errorf("invalid request body: %w", err))
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.Validation("decode request", err)
	}
	return nil
}
