// Package document defines document metadata and its persistence in the
// object store, plus the object key scheme shared by the pipelines.
package document

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Metadata describes an ingested document. It is written once when
// ingestion completes and never mutated; re-ingesting a file creates a
// new document ID.
type Metadata struct {
	DocumentID       string    `json:"document_id"`
	Filename         string    `json:"filename"`
	UploadTimestamp  time.Time `json:"upload_timestamp"`
	FileSizeBytes    int       `json:"file_size_bytes"`
	ContentType      string    `json:"content_type"`
	TextLength       int       `json:"text_length"`
	ChunkCount       int       `json:"chunk_count"`
	EmbeddingModel   string    `json:"embedding_model"`
	VectorDimensions int       `json:"vector_dimensions"`
}

// CachedChunk is one entry in the chunks.json retrieval cache, which
// holds the full chunk texts that vector metadata only previews.
type CachedChunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// NewID generates a unique document ID.
func NewID() string {
	return uuid.New().String()
}

// StoragePrefix is the root prefix for all document objects.
const StoragePrefix = "documents/"

// Prefix returns the object key prefix holding everything for one
// document.
func Prefix(documentID string) string {
	return StoragePrefix + documentID + "/"
}

// OriginalKey returns the object key of the raw uploaded file.
func OriginalKey(documentID, filename string) string {
	ext := "txt"
	if dot := strings.LastIndex(filename, "."); dot != -1 && dot < len(filename)-1 {
		ext = strings.ToLower(filename[dot+1:])
	}
	return Prefix(documentID) + "original." + ext
}

// MetadataKey returns the object key of the metadata JSON.
func MetadataKey(documentID string) string {
	return Prefix(documentID) + "metadata.json"
}

// ChunksKey returns the object key of the chunk text cache.
func ChunksKey(documentID string) string {
	return Prefix(documentID) + "chunks.json"
}
