package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tkaine/kbsearch/internal/objectstore"
)

// ErrNotFound means no metadata exists for the requested document ID.
var ErrNotFound = errors.New("document not found")

// Store persists document metadata and chunk caches as JSON objects in
// the object store.
type Store struct {
	objects objectstore.Store
	logger  *slog.Logger
}

// NewStore creates a document store on top of an object store.
func NewStore(objects objectstore.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{objects: objects, logger: logger}
}

// SaveMetadata writes the metadata JSON for a document.
func (s *Store) SaveMetadata(ctx context.Context, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := s.objects.Put(ctx, MetadataKey(meta.DocumentID), data, "application/json"); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// LoadMetadata reads the metadata JSON for a document. A missing object
// is reported as ErrNotFound.
func (s *Store) LoadMetadata(ctx context.Context, documentID string) (Metadata, error) {
	obj, err := s.objects.Get(ctx, MetadataKey(documentID))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, documentID)
		}
		return Metadata{}, fmt.Errorf("load metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(obj.Data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata for %s: %w", documentID, err)
	}
	return meta, nil
}

// SaveChunkTexts writes the full chunk texts to the retrieval cache.
func (s *Store) SaveChunkTexts(ctx context.Context, documentID string, texts []string) error {
	cached := make([]CachedChunk, len(texts))
	for i, text := range texts {
		cached[i] = CachedChunk{Index: i, Text: text}
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal chunk cache: %w", err)
	}
	if err := s.objects.Put(ctx, ChunksKey(documentID), data, "application/json"); err != nil {
		return fmt.Errorf("save chunk cache: %w", err)
	}
	return nil
}

// LoadChunkTexts reads the chunk text cache back in index order.
func (s *Store) LoadChunkTexts(ctx context.Context, documentID string) ([]string, error) {
	obj, err := s.objects.Get(ctx, ChunksKey(documentID))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: chunk cache for %s", ErrNotFound, documentID)
		}
		return nil, fmt.Errorf("load chunk cache: %w", err)
	}

	var cached []CachedChunk
	if err := json.Unmarshal(obj.Data, &cached); err != nil {
		return nil, fmt.Errorf("parse chunk cache for %s: %w", documentID, err)
	}

	texts := make([]string, len(cached))
	for _, c := range cached {
		if c.Index < 0 || c.Index >= len(texts) {
			return nil, fmt.Errorf("chunk cache for %s has out-of-range index %d", documentID, c.Index)
		}
		texts[c.Index] = c.Text
	}
	return texts, nil
}

// List enumerates metadata for every document under the storage prefix.
// Documents whose metadata cannot be read degrade to a placeholder
// entry carrying only the document ID.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	keys, err := s.objects.List(ctx, StoragePrefix)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var docs []Metadata
	for _, key := range keys {
		if !strings.HasSuffix(key, "/metadata.json") {
			continue
		}

		obj, err := s.objects.Get(ctx, key)
		if err != nil {
			s.logger.Warn("Failed to read document metadata", "key", key, "error", err)
			docs = append(docs, Metadata{DocumentID: documentIDFromKey(key)})
			continue
		}

		var meta Metadata
		if err := json.Unmarshal(obj.Data, &meta); err != nil {
			s.logger.Warn("Failed to parse document metadata", "key", key, "error", err)
			docs = append(docs, Metadata{DocumentID: documentIDFromKey(key)})
			continue
		}
		docs = append(docs, meta)
	}

	return docs, nil
}

// documentIDFromKey recovers the document ID from a key like
// documents/{id}/metadata.json.
func documentIDFromKey(key string) string {
	rest := strings.TrimPrefix(key, StoragePrefix)
	if slash := strings.Index(rest, "/"); slash != -1 {
		return rest[:slash]
	}
	return rest
}
