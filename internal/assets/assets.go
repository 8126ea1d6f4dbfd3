// Package assets stores enrollment face images. Images live under a
// users/<identity>/ prefix and are the bulk source for embedding rebuilds.
package assets

import (
	"context"
	"errors"
)

// ErrNotFound means the requested object does not exist.
var ErrNotFound = errors.New("asset not found")

// ObjectInfo identifies one stored image and the identity it belongs to.
type ObjectInfo struct {
	Identity string
	Key      string
}

// Store persists enrollment images.
type Store interface {
	// Put stores image data for an identity and returns the object key.
	Put(ctx context.Context, identity string, data []byte, ext string) (string, error)
	// Get returns the image bytes for a key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// List enumerates all stored images, ordered by key.
	List(ctx context.Context) ([]ObjectInfo, error)
}
