package supabase

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// UploadObject stores data in a Storage bucket and returns its public URL.
// Existing objects are never overwritten.
func (c *Client) UploadObject(ctx context.Context, bucket, path, contentType string, data []byte) (string, error) {
	objectPath := escapePath(bucket) + "/" + escapePath(path)
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s", c.baseURL, objectPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	if _, err := c.do(req); err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s", c.baseURL, objectPath), nil
}

func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
