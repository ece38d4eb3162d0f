package store

import (
	"context"
	"errors"
)

// ErrObjectExists reports a conditional write that found the key already
// present. Paths are unique per request, so hitting this means a retry
// of the same request, not corruption.
var ErrObjectExists = errors.New("object already exists")

// BlobStore writes resolved asset bytes under a caller-derived key.
// Implementations must be non-overwriting: an existing key fails with
// ErrObjectExists rather than being replaced.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
