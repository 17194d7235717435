// Package vectorindex stores chunk embeddings in a remote vector index
// under deterministic keys and answers similarity queries with
// normalized scores.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"
)

const (
	// MaxBatchSize is the remote API limit per put or delete call.
	MaxBatchSize = 500

	// previewLimit caps the chunk text stored in vector metadata. Full
	// chunk texts are persisted separately in the object store.
	previewLimit  = 500
	previewMarker = "..."
)

// Tier is a coarse relevance bucket derived from the similarity score.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// ScoredResult is one ranked query match with normalized scoring.
type ScoredResult struct {
	Key        string
	DocumentID string
	Filename   string
	ChunkIndex int
	Text       string // truncated preview from vector metadata
	Distance   float64
	Similarity float64
	Tier       Tier
}

// Index implements batched vector storage with deterministic keys on
// top of a remote Service. Safe for concurrent use.
type Index struct {
	service   Service
	batchSize int
	logger    *slog.Logger
}

// NewIndex creates an Index. A batchSize of 0 uses MaxBatchSize;
// smaller values are only useful in tests.
func NewIndex(service Service, batchSize int, logger *slog.Logger) *Index {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		service:   service,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Key builds the deterministic record key for a document chunk. Keys
// are regenerated from the document ID and chunk count alone, so
// deletion needs no auxiliary index.
func Key(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s#%d", documentID, chunkIndex)
}

// Store writes one vector record per (chunkTexts[i], embeddings[i])
// pair under key documentID#i, submitting batches in index order.
// Any batch failure aborts the call; the returned count is only
// meaningful on success.
func (ix *Index) Store(ctx context.Context, documentID, filename string, chunkTexts []string, embeddings [][]float32) (int, error) {
	if len(chunkTexts) != len(embeddings) {
		return 0, fmt.Errorf("chunk/embedding count mismatch: %d texts, %d vectors", len(chunkTexts), len(embeddings))
	}

	records := make([]Record, len(chunkTexts))
	for i, text := range chunkTexts {
		records[i] = Record{
			Key:    Key(documentID, i),
			Vector: embeddings[i],
			Meta: Metadata{
				DocumentID: documentID,
				Filename:   filename,
				ChunkIndex: i,
				ChunkText:  preview(text),
			},
		}
	}

	stored := 0
	for start := 0; start < len(records); start += ix.batchSize {
		end := min(start+ix.batchSize, len(records))
		if err := ix.service.Put(ctx, records[start:end]); err != nil {
			return 0, fmt.Errorf("store vectors %d-%d: %w", start, end-1, err)
		}
		stored += end - start
		ix.logger.Info("Stored vectors", "document", documentID, "from", start, "to", end-1, "total", len(records))
	}

	return stored, nil
}

// Delete removes the records documentID#0 through documentID#(chunkCount-1),
// regenerating keys without consulting the index. Deletion is best
// effort: a failing batch is logged and skipped, remaining batches
// still run. The return value counts keys in batches that succeeded;
// callers compare it against chunkCount to detect partial failure.
func (ix *Index) Delete(ctx context.Context, documentID string, chunkCount int) int {
	keys := make([]string, chunkCount)
	for i := range keys {
		keys[i] = Key(documentID, i)
	}

	deleted := 0
	for start := 0; start < len(keys); start += ix.batchSize {
		end := min(start+ix.batchSize, len(keys))
		if err := ix.service.Delete(ctx, keys[start:end]); err != nil {
			ix.logger.Warn("Failed to delete vector batch", "document", documentID, "from", start, "error", err)
			continue
		}
		deleted += end - start
	}

	ix.logger.Info("Deleted vectors", "document", documentID, "deleted", deleted, "requested", chunkCount)
	return deleted
}

// Query runs a single similarity search and normalizes the results.
// Remote ordering (best match first) is preserved. A missing index
// propagates as ErrIndexNotFound so callers can report an empty
// knowledge base; zero matches returns an empty, non-error result.
func (ix *Index) Query(ctx context.Context, vector []float32, topK int) ([]ScoredResult, error) {
	matches, err := ix.service.Query(ctx, vector, topK)
	if err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	results := make([]ScoredResult, len(matches))
	for i, m := range matches {
		sim := Similarity(m.Distance)
		results[i] = ScoredResult{
			Key:        m.Key,
			DocumentID: m.Meta.DocumentID,
			Filename:   m.Meta.Filename,
			ChunkIndex: m.Meta.ChunkIndex,
			Text:       m.Meta.ChunkText,
			Distance:   m.Distance,
			Similarity: sim,
			Tier:       tierFor(sim),
		}
	}

	return results, nil
}

// Similarity converts a cosine distance to a score clamped to [0, 1].
func Similarity(distance float64) float64 {
	s := 1 - distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func tierFor(similarity float64) Tier {
	switch {
	case similarity >= 0.7:
		return TierHigh
	case similarity >= 0.5:
		return TierMedium
	default:
		return TierLow
	}
}

// preview truncates chunk text for vector metadata, appending a marker
// when cut. The cut is kept on a rune boundary.
func preview(text string) string {
	if len(text) <= previewLimit {
		return text
	}
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + previewMarker
}
