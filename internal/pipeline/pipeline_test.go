package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkaine/kbsearch/internal/document"
	"github.com/tkaine/kbsearch/internal/embedding"
	"github.com/tkaine/kbsearch/internal/extract"
	"github.com/tkaine/kbsearch/internal/objectstore"
	"github.com/tkaine/kbsearch/internal/vectorindex"
)

// fakeEmbedService returns a fixed small vector, or a scripted error.
type fakeEmbedService struct {
	err   error
	calls int
}

func (f *fakeEmbedService) Invoke(context.Context, string, string, int) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 2, 3}, nil
}

// fakeIndexService records puts and deletes with scripted failures.
type fakeIndexService struct {
	putBatches    [][]vectorindex.Record
	deleteBatches [][]string

	putErr    error
	deleteErr error

	queryMatches []vectorindex.Match
	queryErr     error
}

func (f *fakeIndexService) Put(_ context.Context, records []vectorindex.Record) error {
	if f.putErr != nil {
		return f.putErr
	}
	batch := make([]vectorindex.Record, len(records))
	copy(batch, records)
	f.putBatches = append(f.putBatches, batch)
	return nil
}

func (f *fakeIndexService) Delete(_ context.Context, keys []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	batch := make([]string, len(keys))
	copy(batch, keys)
	f.deleteBatches = append(f.deleteBatches, batch)
	return nil
}

func (f *fakeIndexService) Query(context.Context, []float32, int) ([]vectorindex.Match, error) {
	return f.queryMatches, f.queryErr
}

// flakyStore wraps Memory to fail selected operations.
type flakyStore struct {
	*objectstore.Memory
	failPutSuffix string
	failList      bool
	failDelete    bool
}

func (f *flakyStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if f.failPutSuffix != "" && strings.HasSuffix(key, f.failPutSuffix) {
		return fmt.Errorf("put %s: injected failure", key)
	}
	return f.Memory.Put(ctx, key, data, contentType)
}

func (f *flakyStore) List(ctx context.Context, prefix string) ([]string, error) {
	if f.failList {
		return nil, fmt.Errorf("list: injected failure")
	}
	return f.Memory.List(ctx, prefix)
}

func (f *flakyStore) Delete(ctx context.Context, keys []string) error {
	if f.failDelete {
		return fmt.Errorf("delete: injected failure")
	}
	return f.Memory.Delete(ctx, keys)
}

func newTestPipeline(objects objectstore.Store, embSvc embedding.Service, idxSvc vectorindex.Service) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(
		objects,
		extract.NewService(logger),
		embedding.NewClient(embSvc, "test-model", 3, logger),
		vectorindex.NewIndex(idxSvc, 0, logger),
		document.NewStore(objects, logger),
		Config{ChunkSize: 50, ChunkOverlap: 10, EmbeddingModel: "test-model", VectorDimensions: 3},
		logger,
	)
}

func uploadText(t *testing.T, objects objectstore.Store, documentID, filename, content string) {
	t.Helper()
	key := document.OriginalKey(documentID, filename)
	require.NoError(t, objects.Put(context.Background(), key, []byte(content), "text/plain"))
}

func TestIngest_Success(t *testing.T) {
	ctx := context.Background()
	objects := objectstore.NewMemory()
	idx := &fakeIndexService{}
	p := newTestPipeline(objects, &fakeEmbedService{}, idx)

	content := strings.Repeat("A sentence of useful knowledge. ", 5) // forces several chunks
	uploadText(t, objects, "doc-1", "notes.txt", content)

	result, err := p.Ingest(ctx, "doc-1", "notes.txt")
	require.NoError(t, err)

	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Equal(t, len(strings.TrimSpace(content)), result.TextLength)
	assert.Greater(t, result.ChunkCount, 1)
	assert.Equal(t, result.ChunkCount, result.VectorsStored)
	assert.Empty(t, result.Warnings)

	// Vectors were submitted under deterministic keys.
	var stored int
	for _, batch := range idx.putBatches {
		stored += len(batch)
	}
	assert.Equal(t, result.VectorsStored, stored)

	// Metadata and chunk cache are persisted.
	docs := document.NewStore(objects, nil)
	meta, err := docs.LoadMetadata(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, result.ChunkCount, meta.ChunkCount)
	assert.Equal(t, "test-model", meta.EmbeddingModel)
	assert.Equal(t, 3, meta.VectorDimensions)

	texts, err := docs.LoadChunkTexts(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, texts, result.ChunkCount)
}

func TestIngest_DocumentNotUploaded(t *testing.T) {
	p := newTestPipeline(objectstore.NewMemory(), &fakeEmbedService{}, &fakeIndexService{})

	_, err := p.Ingest(context.Background(), "ghost", "missing.txt")
	require.ErrorIs(t, err, objectstore.ErrNotFound)
	assert.Contains(t, err.Error(), document.OriginalKey("ghost", "missing.txt"),
		"error should name the expected location")
}

func TestIngest_FileTooLarge(t *testing.T) {
	objects := objectstore.NewMemory()
	p := newTestPipeline(objects, &fakeEmbedService{}, &fakeIndexService{})

	big := make([]byte, MaxFileSize+1)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, objects.Put(context.Background(), document.OriginalKey("doc-1", "big.txt"), big, "text/plain"))

	_, err := p.Ingest(context.Background(), "doc-1", "big.txt")
	require.ErrorIs(t, err, ErrFileTooLarge)
}

func TestIngest_UnsupportedFormat(t *testing.T) {
	objects := objectstore.NewMemory()
	p := newTestPipeline(objects, &fakeEmbedService{}, &fakeIndexService{})

	key := document.OriginalKey("doc-1", "image.png")
	require.NoError(t, objects.Put(context.Background(), key, []byte("bytes"), "image/png"))

	_, err := p.Ingest(context.Background(), "doc-1", "image.png")
	require.ErrorIs(t, err, extract.ErrUnsupportedFormat)
}

func TestIngest_EmptyExtraction(t *testing.T) {
	objects := objectstore.NewMemory()
	p := newTestPipeline(objects, &fakeEmbedService{}, &fakeIndexService{})

	uploadText(t, objects, "doc-1", "blank.txt", "   \n\t  ")

	_, err := p.Ingest(context.Background(), "doc-1", "blank.txt")
	require.ErrorIs(t, err, extract.ErrEmptyDocument)
}

func TestIngest_EmbeddingFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	objects := objectstore.NewMemory()
	idx := &fakeIndexService{}
	p := newTestPipeline(objects, &fakeEmbedService{err: errors.New("model unavailable")}, idx)

	uploadText(t, objects, "doc-1", "notes.txt", "some document text")

	_, err := p.Ingest(ctx, "doc-1", "notes.txt")
	require.Error(t, err)

	assert.Empty(t, idx.putBatches, "no vectors may be written after an embedding failure")
	_, err = document.NewStore(objects, nil).LoadMetadata(ctx, "doc-1")
	assert.ErrorIs(t, err, document.ErrNotFound, "no metadata may be written")
}

func TestIngest_StoreFailureSkipsMetadata(t *testing.T) {
	ctx := context.Background()
	objects := objectstore.NewMemory()
	idx := &fakeIndexService{putErr: errors.New("index down")}
	p := newTestPipeline(objects, &fakeEmbedService{}, idx)

	uploadText(t, objects, "doc-1", "notes.txt", "some document text")

	_, err := p.Ingest(ctx, "doc-1", "notes.txt")
	require.Error(t, err)

	_, err = document.NewStore(objects, nil).LoadMetadata(ctx, "doc-1")
	assert.ErrorIs(t, err, document.ErrNotFound, "metadata must not be written after a store failure")
}

func TestIngest_ChunkCacheFailureIsWarning(t *testing.T) {
	objects := &flakyStore{Memory: objectstore.NewMemory(), failPutSuffix: "chunks.json"}
	p := newTestPipeline(objects, &fakeEmbedService{}, &fakeIndexService{})

	uploadText(t, objects, "doc-1", "notes.txt", "some document text")

	result, err := p.Ingest(context.Background(), "doc-1", "notes.txt")
	require.NoError(t, err, "chunk cache failure must not fail ingestion")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "chunk cache")

	// Metadata still written.
	_, err = document.NewStore(objects, nil).LoadMetadata(context.Background(), "doc-1")
	assert.NoError(t, err)
}

func TestIngest_MetadataFailureIsPartialSuccess(t *testing.T) {
	objects := &flakyStore{Memory: objectstore.NewMemory(), failPutSuffix: "metadata.json"}
	idx := &fakeIndexService{}
	p := newTestPipeline(objects, &fakeEmbedService{}, idx)

	uploadText(t, objects, "doc-1", "notes.txt", "some document text")

	result, err := p.Ingest(context.Background(), "doc-1", "notes.txt")
	require.NoError(t, err, "metadata failure degrades to partial success")
	assert.Greater(t, result.VectorsStored, 0, "vectors were stored before the metadata step")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "searchable")
}

func TestDelete_Success(t *testing.T) {
	ctx := context.Background()
	objects := objectstore.NewMemory()
	idx := &fakeIndexService{}
	p := newTestPipeline(objects, &fakeEmbedService{}, idx)

	uploadText(t, objects, "doc-1", "notes.txt", strings.Repeat("Useful sentence here. ", 10))
	_, err := p.Ingest(ctx, "doc-1", "notes.txt")
	require.NoError(t, err)

	result, err := p.Delete(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", result.Filename)
	assert.Empty(t, result.Errors)

	// Every stored vector key was regenerated and deleted.
	var put, deleted int
	for _, b := range idx.putBatches {
		put += len(b)
	}
	for _, b := range idx.deleteBatches {
		deleted += len(b)
	}
	assert.Equal(t, put, deleted)
	assert.Equal(t, put, result.DeletedVectors)

	// No objects remain under the document prefix.
	keys, err := objects.List(ctx, document.Prefix("doc-1"))
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDelete_DocumentNotFound(t *testing.T) {
	p := newTestPipeline(objectstore.NewMemory(), &fakeEmbedService{}, &fakeIndexService{})

	_, err := p.Delete(context.Background(), "ghost")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestDelete_VectorFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	objects := objectstore.NewMemory()
	docs := document.NewStore(objects, nil)
	require.NoError(t, docs.SaveMetadata(ctx, document.Metadata{
		DocumentID: "doc-1", Filename: "notes.txt", ChunkCount: 3,
	}))

	idx := &fakeIndexService{deleteErr: errors.New("index down")}
	p := newTestPipeline(objects, &fakeEmbedService{}, idx)

	result, err := p.Delete(ctx, "doc-1")
	require.NoError(t, err, "vector failures are recorded, not raised")

	assert.Equal(t, 0, result.DeletedVectors)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "vector deletion incomplete")

	// Object cleanup still ran.
	keys, err := objects.List(ctx, document.Prefix("doc-1"))
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDelete_ObjectCleanupFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	objects := &flakyStore{Memory: objectstore.NewMemory(), failDelete: true}
	docs := document.NewStore(objects, nil)
	require.NoError(t, docs.SaveMetadata(ctx, document.Metadata{
		DocumentID: "doc-1", Filename: "notes.txt", ChunkCount: 2,
	}))

	p := newTestPipeline(objects, &fakeEmbedService{}, &fakeIndexService{})

	result, err := p.Delete(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, 2, result.DeletedVectors)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "object cleanup")
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx := &fakeIndexService{queryErr: fmt.Errorf("%w: no collection", vectorindex.ErrIndexNotFound)}
	p := newTestPipeline(objectstore.NewMemory(), &fakeEmbedService{}, idx)

	result, err := p.Search(context.Background(), "anything", 5)
	require.NoError(t, err, "an empty knowledge base is not an error")
	assert.Equal(t, StatusEmptyIndex, result.Status)
	assert.Empty(t, result.Results)
}

func TestSearch_NoResults(t *testing.T) {
	p := newTestPipeline(objectstore.NewMemory(), &fakeEmbedService{}, &fakeIndexService{})

	result, err := p.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Equal(t, StatusNoResults, result.Status)
}

func TestSearch_RankedResults(t *testing.T) {
	idx := &fakeIndexService{queryMatches: []vectorindex.Match{
		{Key: "d#0", Distance: 0.1, Meta: vectorindex.Metadata{DocumentID: "d", Filename: "a.txt", ChunkIndex: 0, ChunkText: "best"}},
		{Key: "d#1", Distance: 0.6, Meta: vectorindex.Metadata{DocumentID: "d", Filename: "a.txt", ChunkIndex: 1, ChunkText: "worse"}},
	}}
	p := newTestPipeline(objectstore.NewMemory(), &fakeEmbedService{}, idx)

	result, err := p.Search(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Equal(t, StatusOK, result.Status)
	require.Len(t, result.Results, 2)

	assert.Equal(t, vectorindex.TierHigh, result.Results[0].Tier)
	assert.Equal(t, "best", result.Results[0].Text)
	assert.Equal(t, vectorindex.TierLow, result.Results[1].Tier)
}

func TestSearch_EmbedFailure(t *testing.T) {
	p := newTestPipeline(objectstore.NewMemory(), &fakeEmbedService{err: errors.New("down")}, &fakeIndexService{})

	_, err := p.Search(context.Background(), "query", 5)
	require.Error(t, err)
}

func TestListDocuments(t *testing.T) {
	ctx := context.Background()
	objects := objectstore.NewMemory()
	p := newTestPipeline(objects, &fakeEmbedService{}, &fakeIndexService{})

	uploadText(t, objects, "doc-1", "notes.txt", "some document text")
	_, err := p.Ingest(ctx, "doc-1", "notes.txt")
	require.NoError(t, err)

	docs, err := p.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "notes.txt", docs[0].Filename)
}
