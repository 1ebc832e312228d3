// Package evidence describes storage for uploaded slip and signature images.
package evidence

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound        = errors.New("evidence not found")
	ErrEmptyUpload     = errors.New("evidence upload is empty")
	ErrUnsupportedType = errors.New("evidence must be a JPEG, PNG or WebP image")
)

// Object is a stored evidence file opened for reading.
type Object struct {
	ID          string
	Filename    string
	ContentType string
	Length      int64
	Body        io.ReadCloser
}

// Store keeps evidence bytes and hands back a URL the verifier can fetch.
type Store interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (string, error)
	Open(ctx context.Context, id string) (*Object, error)
}

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// CheckUpload validates an upload before it reaches the store.
func CheckUpload(contentType string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyUpload
	}
	if !allowedContentTypes[contentType] {
		return ErrUnsupportedType
	}
	return nil
}
