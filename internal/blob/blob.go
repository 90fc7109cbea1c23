// Package blob stores image originals, lossless derivatives, and
// metadata sidecars under content-addressed keys.
package blob

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("blob not found")

// Store is the object storage backend. Keys are flat names derived
// from the image's content hash, so writes are naturally idempotent.
type Store interface {
	// Put stores data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the object stored under key.
	// Returns an error matching ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object under key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// OriginalKey is the storage key for an image's original PNG bytes.
func OriginalKey(hash string) string {
	return hash + ".png"
}

// LosslessKey is the storage key for an image's lossless derivative in
// the given format ("webp", "avif", or "png").
func LosslessKey(hash, format string) string {
	return fmt.Sprintf("%s.lossless.%s", hash, format)
}

// SidecarKey is the storage key for an image's metadata sidecar document.
func SidecarKey(hash string) string {
	return hash + ".metadata.json"
}
