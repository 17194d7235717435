// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds everything the CLI needs to wire the pipeline.
type Config struct {
	QdrantHost string
	QdrantPort int
	Collection string

	DocumentsBucket string
	AWSRegion       string

	EmbeddingModel   string
	VectorDimensions int

	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

// Load reads configuration from environment variables, applying
// defaults and validating the result.
//
// Environment variables:
//
//	QDRANT_HOST        Qdrant hostname (default: localhost)
//	QDRANT_PORT        Qdrant gRPC port (default: 6334)
//	VECTOR_INDEX       Qdrant collection name (default: documents)
//	DOCUMENTS_BUCKET   S3 bucket for document storage (required)
//	AWS_REGION         AWS region for the bucket (default: us-east-1)
//	OPENAI_API_KEY     OpenAI API key for embeddings (required, read by the embedding client)
//	EMBEDDING_MODEL    embedding model ID (default: text-embedding-3-small)
//	VECTOR_DIMENSIONS  embedding vector size (default: 1536)
//	CHUNK_SIZE         chunk size in characters (default: 4000)
//	CHUNK_OVERLAP      chunk overlap in characters (default: 800)
//	TOP_K              default search result count (default: 5)
func Load() (*Config, error) {
	cfg := &Config{
		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		Collection:       getEnv("VECTOR_INDEX", "documents"),
		DocumentsBucket:  os.Getenv("DOCUMENTS_BUCKET"),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		VectorDimensions: getEnvInt("VECTOR_DIMENSIONS", 1536),
		ChunkSize:        getEnvInt("CHUNK_SIZE", 4000),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 800),
		TopK:             getEnvInt("TOP_K", 5),
	}

	if cfg.DocumentsBucket == "" {
		return nil, fmt.Errorf("DOCUMENTS_BUCKET environment variable is required")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d with chunk size %d",
			cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if cfg.VectorDimensions <= 0 {
		return nil, fmt.Errorf("VECTOR_DIMENSIONS must be positive, got %d", cfg.VectorDimensions)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
