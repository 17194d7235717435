package vectorindex

import "errors"

var (
	// ErrIndexNotFound means the remote index does not exist yet. It is
	// distinct from an empty query result: callers surface it as an
	// empty knowledge base, not a failure.
	ErrIndexNotFound = errors.New("vector index not found")

	ErrIndexUnreachable  = errors.New("vector index unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
