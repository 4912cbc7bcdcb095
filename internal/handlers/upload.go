package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/linked-app/linked/backend/internal/apperr"
	"github.com/linked-app/linked/backend/internal/models"
	"github.com/linked-app/linked/backend/internal/services"
)

// multipart framing on top of the file itself
const uploadOverhead = 1 << 20

// UploadHandler stores profile images.
type UploadHandler struct {
	uploads *services.UploadService
}

// NewUploadHandler creates a new UploadHandler instance.
func NewUploadHandler(uploads *services.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// Upload handles POST /api/upload
// Expects a multipart form with the image in the "file" field and returns
// its public URL.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxUploadSize+uploadOverhead)

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperr.Validation("upload image", fmt.Errorf("file field is required: %w", err)))
		return
	}
	defer file.Close()

	// One byte past the limit is enough for the service to reject it
	data, err := io.ReadAll(io.LimitReader(file, services.MaxUploadSize+1))
	if err != nil {
		writeError(w, apperr.Validation("upload image", err))
		return
	}

	url, err := h.uploads.UploadImage(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.UploadResponse{URL: url})
}
