// internal/adapters/supabase/storage.go
package supabase

import (
	"context"
	"fmt"
	"strings"

	"lebonpont/internal/domain"
)

// Objects implements domain.ObjectStore against the hosted object API.
// Paths are bucket-relative; public URLs are derived locally, no network.
type Objects struct {
	c      *Client
	bucket string
}

func NewObjects(c *Client, bucket string) *Objects {
	return &Objects{c: c, bucket: bucket}
}

func (o *Objects) Upload(ctx context.Context, path string, blob []byte, contentType string) (string, error) {
	path = strings.TrimLeft(path, "/")
	u := fmt.Sprintf("%s/storage/v1/object/%s/%s", o.c.base, o.bucket, path)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := o.c.postRaw(ctx, u, blob, contentType, nil); err != nil {
		return "", &domain.StorageError{Path: path, Err: err}
	}
	return path, nil
}

func (o *Objects) PublicURL(path string) string {
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", o.c.base, o.bucket, path)
}
