package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/linked-app/linked/backend/internal/apperr"
	"go.uber.org/zap"
)

// MaxUploadSize is the largest image accepted, 10 MB.
const MaxUploadSize = 10 << 20

// ObjectStore stores a blob and returns its public URL.
type ObjectStore interface {
	UploadObject(ctx context.Context, bucket, path, contentType string, data []byte) (string, error)
}

// UploadService stores profile images in Supabase Storage.
type UploadService struct {
	store   ObjectStore
	bucket  string
	timeout time.Duration
	log     *zap.Logger
}

// NewUploadService creates a new UploadService instance.
func NewUploadService(store ObjectStore, bucket string, timeout time.Duration, log *zap.Logger) *UploadService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &UploadService{store: store, bucket: bucket, timeout: timeout, log: log}
}

// UploadImage checks that data is an image of at most MaxUploadSize bytes and
// stores it under a random name. The declared content type is ignored, the
// type is sniffed from the bytes.
func (s *UploadService) UploadImage(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperr.Validation("upload image", fmt.Errorf("file is empty"))
	}
	if len(data) > MaxUploadSize {
		return "", apperr.Validation("upload image",
			fmt.Errorf("file is %d bytes, max %d", len(data), MaxUploadSize))
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", apperr.Validation("upload image",
			fmt.Errorf("unsupported file type %s", mtype.String()))
	}

	name := uuid.New().String() + mtype.Extension()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	url, err := s.store.UploadObject(ctx, s.bucket, name, mtype.String(), data)
	if err != nil {
		return "", apperr.Persistence("upload image", err)
	}

	s.log.Info("[Upload] Stored image",
		zap.String("object", name),
		zap.String("type", mtype.String()),
		zap.Int("bytes", len(data)))
	return url, nil
}
