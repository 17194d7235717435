// Package objectstore abstracts the blob store that holds original
// documents, chunk caches, and metadata JSON.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound means no object exists at the requested key.
var ErrNotFound = errors.New("object not found")

// Object is a stored blob with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// Store is the object storage collaborator. Implementations must be
// safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (Object, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, keys []string) error
}
