// Package pipeline composes extraction, chunking, embedding, and vector
// storage into the knowledge base's entry points: ingest, delete,
// search, and list.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkaine/kbsearch/internal/chunk"
	"github.com/tkaine/kbsearch/internal/document"
	"github.com/tkaine/kbsearch/internal/embedding"
	"github.com/tkaine/kbsearch/internal/extract"
	"github.com/tkaine/kbsearch/internal/objectstore"
	"github.com/tkaine/kbsearch/internal/vectorindex"
)

// MaxFileSize is the upload ceiling for a single document.
const MaxFileSize = 10 << 20 // 10 MiB

var (
	ErrFileTooLarge = errors.New("file exceeds maximum size")
	ErrNoChunks     = errors.New("no chunks produced from document text")
)

// Config carries the tunables shared by the pipeline operations.
type Config struct {
	ChunkSize        int
	ChunkOverlap     int
	EmbeddingModel   string
	VectorDimensions int
	TopK             int // default search result count
}

// Pipeline executes the document lifecycle against injected
// collaborators. Each invocation is a single sequential flow; the
// pipeline holds no mutable state, so one instance may serve
// concurrent invocations.
type Pipeline struct {
	objects   objectstore.Store
	extractor *extract.Service
	embedder  *embedding.Client
	index     *vectorindex.Index
	docs      *document.Store
	cfg       Config
	logger    *slog.Logger
}

// New creates a pipeline. Zero config values fall back to defaults
// (chunk size 4000, overlap 800, top-k 5).
func New(
	objects objectstore.Store,
	extractor *extract.Service,
	embedder *embedding.Client,
	index *vectorindex.Index,
	docs *document.Store,
	cfg Config,
	logger *slog.Logger,
) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 4000
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 800
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		objects:   objects,
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		docs:      docs,
		cfg:       cfg,
		logger:    logger,
	}
}

// IngestResult summarizes a completed ingestion. Warnings report
// non-fatal step failures: the document is searchable either way.
type IngestResult struct {
	DocumentID    string
	Filename      string
	TextLength    int
	ChunkCount    int
	VectorsStored int
	Warnings      []string
}

// Ingest processes an uploaded document end to end: fetch, size check,
// text extraction, chunking, embedding, vector storage, chunk cache,
// metadata. Each step gates the next; the chunk cache and metadata
// writes degrade to warnings because the vectors are already stored.
//
// A failure during vector storage may leave some batches written with
// no metadata recorded; that inconsistency window is reported, not
// rolled back.
func (p *Pipeline) Ingest(ctx context.Context, documentID, filename string) (*IngestResult, error) {
	key := document.OriginalKey(documentID, filename)
	obj, err := p.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, fmt.Errorf("document %q (ID %s) not found at %s; upload the file first: %w",
				filename, documentID, key, err)
		}
		return nil, fmt.Errorf("fetch document %q: %w", filename, err)
	}

	if len(obj.Data) > MaxFileSize {
		return nil, fmt.Errorf("%w: %q is %d bytes, limit %d", ErrFileTooLarge, filename, len(obj.Data), MaxFileSize)
	}

	text, err := p.extractor.Extract(obj.Data, filename, obj.ContentType)
	if err != nil {
		return nil, fmt.Errorf("extract text from %q: %w", filename, err)
	}

	chunks := chunk.Split(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoChunks, filename)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	p.logger.Info("Chunked document", "document", documentID, "chars", len(text), "chunks", len(chunks))

	// Nothing has been written yet, so an embedding failure leaves no
	// partial index state.
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("generate embeddings for %q: %w", filename, err)
	}

	stored, err := p.index.Store(ctx, documentID, filename, texts, embeddings)
	if err != nil {
		return nil, fmt.Errorf("store vectors for %q: %w", filename, err)
	}

	result := &IngestResult{
		DocumentID:    documentID,
		Filename:      filename,
		TextLength:    len(text),
		ChunkCount:    len(chunks),
		VectorsStored: stored,
	}

	// The cache only speeds up retrieval; the document is already
	// searchable through the index.
	if err := p.docs.SaveChunkTexts(ctx, documentID, texts); err != nil {
		p.logger.Warn("Failed to save chunk cache", "document", documentID, "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("chunk cache write failed: %v", err))
	}

	meta := document.Metadata{
		DocumentID:       documentID,
		Filename:         filename,
		UploadTimestamp:  time.Now().UTC(),
		FileSizeBytes:    len(obj.Data),
		ContentType:      obj.ContentType,
		TextLength:       len(text),
		ChunkCount:       len(chunks),
		EmbeddingModel:   p.cfg.EmbeddingModel,
		VectorDimensions: p.cfg.VectorDimensions,
	}
	if err := p.docs.SaveMetadata(ctx, meta); err != nil {
		p.logger.Warn("Failed to save metadata", "document", documentID, "error", err)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("metadata write failed, document is searchable but will not list correctly: %v", err))
	}

	p.logger.Info("Ingested document",
		"document", documentID,
		"filename", filename,
		"chunks", result.ChunkCount,
		"vectors", result.VectorsStored,
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// DeleteResult reports what a deletion removed. A non-empty Errors
// slice means partial deletion; retrying is the caller's decision.
type DeleteResult struct {
	DocumentID     string
	Filename       string
	DeletedVectors int
	Errors         []string
}

// Delete removes a document's vectors and objects. Metadata must exist
// (it provides the chunk count for key regeneration); everything after
// that lookup is best effort, with failures recorded in the result.
func (p *Pipeline) Delete(ctx context.Context, documentID string) (*DeleteResult, error) {
	meta, err := p.docs.LoadMetadata(ctx, documentID)
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{
		DocumentID: documentID,
		Filename:   meta.Filename,
	}

	if meta.ChunkCount > 0 {
		result.DeletedVectors = p.index.Delete(ctx, documentID, meta.ChunkCount)
		if result.DeletedVectors < meta.ChunkCount {
			result.Errors = append(result.Errors,
				fmt.Sprintf("vector deletion incomplete: %d of %d removed", result.DeletedVectors, meta.ChunkCount))
		}
	}

	keys, err := p.objects.List(ctx, document.Prefix(documentID))
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list document objects: %v", err))
	} else if len(keys) > 0 {
		if err := p.objects.Delete(ctx, keys); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("object cleanup: %v", err))
		}
	}

	p.logger.Info("Deleted document",
		"document", documentID,
		"filename", meta.Filename,
		"vectors", result.DeletedVectors,
		"errors", len(result.Errors),
	)
	return result, nil
}

// SearchStatus distinguishes the empty knowledge base and no-match
// outcomes from a populated result.
type SearchStatus int

const (
	StatusOK SearchStatus = iota
	StatusNoResults
	StatusEmptyIndex
)

// SearchResult is the outcome of a similarity search.
type SearchResult struct {
	Status  SearchStatus
	Results []vectorindex.ScoredResult
}

// Search embeds the query and runs a similarity search. A missing
// index means no document was ever ingested and is reported as
// StatusEmptyIndex rather than an error.
func (p *Pipeline) Search(ctx context.Context, query string, topK int) (*SearchResult, error) {
	if topK <= 0 {
		topK = p.cfg.TopK
	}

	vector, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := p.index.Query(ctx, vector, topK)
	if err != nil {
		if errors.Is(err, vectorindex.ErrIndexNotFound) {
			return &SearchResult{Status: StatusEmptyIndex}, nil
		}
		return nil, err
	}

	if len(results) == 0 {
		return &SearchResult{Status: StatusNoResults}, nil
	}
	return &SearchResult{Status: StatusOK, Results: results}, nil
}

// ListDocuments returns metadata for every ingested document.
func (p *Pipeline) ListDocuments(ctx context.Context) ([]document.Metadata, error) {
	return p.docs.List(ctx)
}
