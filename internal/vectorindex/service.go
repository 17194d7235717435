package vectorindex

import "context"

// Metadata is stored alongside each vector and returned with query
// matches. ChunkText holds a truncated preview; full chunk texts live
// in the object store.
type Metadata struct {
	DocumentID string
	Filename   string
	ChunkIndex int
	ChunkText  string
}

// Record is one key -> vector entry submitted to the remote index.
type Record struct {
	Key    string
	Vector []float32
	Meta   Metadata
}

// Match is a raw similarity result from the remote index. Distance is a
// bounded dissimilarity (cosine distance, lower is more similar).
type Match struct {
	Key      string
	Distance float64
	Meta     Metadata
}

// Service is the remote vector index. Put and Delete accept at most
// MaxBatchSize records or keys per call; Query returns matches
// best-first. A missing index is reported as ErrIndexNotFound.
type Service interface {
	Put(ctx context.Context, records []Record) error
	Delete(ctx context.Context, keys []string) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}
