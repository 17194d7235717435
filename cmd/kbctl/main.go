// Package main provides the kbctl CLI for managing the document
// knowledge base: ingesting, searching, listing, and deleting documents.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tkaine/kbsearch/internal/config"
	"github.com/tkaine/kbsearch/internal/document"
	"github.com/tkaine/kbsearch/internal/embedding"
	"github.com/tkaine/kbsearch/internal/extract"
	"github.com/tkaine/kbsearch/internal/objectstore"
	"github.com/tkaine/kbsearch/internal/pipeline"
	"github.com/tkaine/kbsearch/internal/vectorindex"
)

var rootCmd = &cobra.Command{
	Use:   "kbctl",
	Short: "Document knowledge base management tool",
	Long: `CLI tool for managing a document knowledge base backed by S3 and Qdrant.

Environment variables:
  DOCUMENTS_BUCKET   S3 bucket for document storage (required)
  OPENAI_API_KEY     OpenAI API key for embeddings (required)
  QDRANT_HOST        Qdrant hostname (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  VECTOR_INDEX       Qdrant collection name (default: documents)
  AWS_REGION         AWS region for the bucket (default: us-east-1)
  EMBEDDING_MODEL    embedding model ID (default: text-embedding-3-small)
  VECTOR_DIMENSIONS  embedding vector size (default: 1536)
  CHUNK_SIZE         chunk size in characters (default: 4000)
  CHUNK_OVERLAP      chunk overlap in characters (default: 800)
  TOP_K              default search result count (default: 5)`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Upload a document and index it for search",
	Long: `Uploads a local file to the document bucket, extracts its text,
and indexes the resulting chunks in Qdrant.

Prints the generated document ID on success; use it with the delete
command to remove the document later.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Remove a document and its vectors",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	RunE:  runList,
}

var searchTopK int

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "number of results to return (default from TOP_K)")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired pipeline with the connections that need closing.
type app struct {
	pipeline *pipeline.Pipeline
	objects  objectstore.Store
	qdrant   *vectorindex.QdrantService
}

func (a *app) Close() {
	if err := a.qdrant.Close(); err != nil {
		slog.Warn("Failed to close Qdrant connection", "error", err)
	}
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	objects, err := objectstore.NewS3Store(ctx, cfg.DocumentsBucket, cfg.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("connect to document bucket: %w", err)
	}

	qdrant, err := vectorindex.NewQdrantService(vectorindex.QdrantConfig{
		Host:       cfg.QdrantHost,
		Port:       cfg.QdrantPort,
		Collection: cfg.Collection,
		Dimensions: cfg.VectorDimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to Qdrant: %w", err)
	}
	if err := qdrant.EnsureIndex(ctx); err != nil {
		qdrant.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	openaiService, err := embedding.NewOpenAIService()
	if err != nil {
		qdrant.Close()
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	p := pipeline.New(
		objects,
		extract.NewService(logger),
		embedding.NewClient(openaiService, cfg.EmbeddingModel, cfg.VectorDimensions, logger),
		vectorindex.NewIndex(qdrant, 0, logger),
		document.NewStore(objects, logger),
		pipeline.Config{
			ChunkSize:        cfg.ChunkSize,
			ChunkOverlap:     cfg.ChunkOverlap,
			EmbeddingModel:   cfg.EmbeddingModel,
			VectorDimensions: cfg.VectorDimensions,
			TopK:             cfg.TopK,
		},
		logger,
	)

	return &app{pipeline: p, objects: objects, qdrant: qdrant}, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()
	path := args[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > pipeline.MaxFileSize {
		return fmt.Errorf("%s is %d bytes, limit is %d", path, len(data), pipeline.MaxFileSize)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	filename := filepath.Base(path)
	documentID := document.NewID()

	fmt.Printf("Uploading %s...\n", filename)
	key := document.OriginalKey(documentID, filename)
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if err := a.objects.Put(ctx, key, data, contentType); err != nil {
		return fmt.Errorf("upload %s: %w", filename, err)
	}

	fmt.Println("Indexing...")
	result, err := a.pipeline.Ingest(ctx, documentID, filename)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", filename, err)
	}

	fmt.Println()
	fmt.Println("Ingest complete!")
	fmt.Printf("  Document ID: %s\n", result.DocumentID)
	fmt.Printf("  Text length: %d chars\n", result.TextLength)
	fmt.Printf("  Chunks: %d\n", result.ChunkCount)
	fmt.Printf("  Vectors stored: %d\n", result.VectorsStored)
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Millisecond))

	for _, w := range result.Warnings {
		fmt.Printf("  Warning: %s\n", w)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := args[0]

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.pipeline.Search(ctx, query, searchTopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	switch result.Status {
	case pipeline.StatusEmptyIndex:
		fmt.Println("The knowledge base is empty. Ingest a document first.")
		return nil
	case pipeline.StatusNoResults:
		fmt.Println("No matching content found.")
		return nil
	}

	fmt.Printf("Found %d results:\n", len(result.Results))
	for i, r := range result.Results {
		fmt.Println()
		fmt.Printf("%d. %s (chunk %d): %s relevance, score %.3f\n",
			i+1, r.Filename, r.ChunkIndex, r.Tier, r.Similarity)
		fmt.Printf("   %s\n", r.Text)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	documentID := args[0]

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.pipeline.Delete(ctx, documentID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", documentID, err)
	}

	fmt.Printf("Deleted %s (%s)\n", result.DocumentID, result.Filename)
	fmt.Printf("  Vectors removed: %d\n", result.DeletedVectors)
	for _, e := range result.Errors {
		fmt.Printf("  Error: %s\n", e)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("deletion incomplete, rerun to retry")
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.pipeline.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		fmt.Println("No documents ingested.")
		return nil
	}

	fmt.Printf("%d documents:\n", len(docs))
	for _, d := range docs {
		fmt.Printf("  %s  %-30s  %d chunks  %s\n",
			d.DocumentID, d.Filename, d.ChunkCount, d.UploadTimestamp.Format(time.RFC3339))
	}
	return nil
}
