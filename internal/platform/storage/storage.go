package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when a storage key has no object.
var ErrObjectNotFound = errors.New("object not found")

// FileStorage is the blob port: keys are opaque, contents are bytes plus a
// content type.
type FileStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}
