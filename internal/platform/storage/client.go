package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// MaxLogoBytes caps store logo uploads.
const MaxLogoBytes = 512 << 10

var (
	ErrEmptyObject        = errors.New("storage: object is empty")
	ErrObjectTooLarge     = errors.New("storage: object exceeds size limit")
	ErrContentTypeDenied  = errors.New("storage: content type not allowed")
	errClientNotAvailable = errors.New("storage: client not initialised")
)

var imageContentTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// ExtensionFor returns the file extension for an accepted image content type.
func ExtensionFor(contentType string) (string, error) {
	ext, ok := imageContentTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrContentTypeDenied, contentType)
	}
	return ext, nil
}

// Client writes and removes media objects in a single bucket.
type Client struct {
	client *gcs.Client
	bucket string
}

// NewClient binds a Cloud Storage client to bucket.
func NewClient(client *gcs.Client, bucket string) (*Client, error) {
	if client == nil {
		return nil, errClientNotAvailable
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	return &Client{client: client, bucket: bucket}, nil
}

// Upload writes data to object only if it does not already exist.
func (c *Client) Upload(ctx context.Context, object, contentType string, data []byte) error {
	if c == nil || c.client == nil {
		return errClientNotAvailable
	}
	if len(data) == 0 {
		return ErrEmptyObject
	}
	if len(data) > MaxLogoBytes {
		return ErrObjectTooLarge
	}
	if _, err := ExtensionFor(contentType); err != nil {
		return err
	}

	w := c.client.Bucket(c.bucket).Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=3600"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: finalize %s: %w", object, err)
	}
	return nil
}

// Delete removes object. A missing object is not an error.
func (c *Client) Delete(ctx context.Context, object string) error {
	if c == nil || c.client == nil {
		return errClientNotAvailable
	}
	err := c.client.Bucket(c.bucket).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("storage: delete %s: %w", object, err)
	}
	return nil
}
