package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantConfig holds connection settings for the Qdrant-backed Service.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	Dimensions int
}

// QdrantService implements Service against a Qdrant instance over gRPC.
type QdrantService struct {
	client     *qdrant.Client
	collection string
	dimensions int
}

// NewQdrantService creates a Qdrant client and verifies the server is
// reachable, retrying the health check with exponential backoff before
// failing.
func NewQdrantService(cfg QdrantConfig) (*QdrantService, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	svc := &QdrantService{
		client:     client,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
	}

	if err := svc.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrIndexUnreachable, err)
	}

	return svc, nil
}

// healthCheckWithRetry probes the server with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantService) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(exponentialBackoff, ctx))
}

// Health performs a single health check against the server.
func (s *QdrantService) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureIndex creates the collection with the configured dimensionality
// and cosine distance if it does not exist. Idempotent.
func (s *QdrantService) EnsureIndex(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// pointID derives a deterministic Qdrant point ID from a record key.
// Qdrant only accepts UUID or integer IDs, so the string key is hashed
// into a UUID; deletion regenerates the same IDs from keys alone. The
// original key is kept in the payload.
func pointID(key string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String())
}

// Put upserts one point per record.
func (s *QdrantService) Put(ctx context.Context, records []Record) error {
	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if len(r.Vector) != s.dimensions {
			return fmt.Errorf("%w: record %q has %d dimensions, expected %d",
				ErrDimensionMismatch, r.Key, len(r.Vector), s.dimensions)
		}
		points[i] = &qdrant.PointStruct{
			Id:      pointID(r.Key),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"key":         r.Key,
				"document_id": r.Meta.DocumentID,
				"filename":    r.Meta.Filename,
				"chunk_index": int64(r.Meta.ChunkIndex),
				"chunk_text":  r.Meta.ChunkText,
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

// Delete removes the points for the given record keys.
func (s *QdrantService) Delete(ctx context.Context, keys []string) error {
	ids := make([]*qdrant.PointId, len(keys))
	for i, key := range keys {
		ids[i] = pointID(key)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(ids...),
	})
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// Query performs a similarity search. Qdrant reports cosine similarity
// (higher is better); it is converted to cosine distance so scoring is
// uniform across Service implementations. A missing collection maps to
// ErrIndexNotFound.
func (s *QdrantService) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %v", ErrIndexNotFound, err)
		}
		return nil, fmt.Errorf("query points: %w", err)
	}

	matches := make([]Match, len(results))
	for i, result := range results {
		payload := result.Payload
		matches[i] = Match{
			Key:      payload["key"].GetStringValue(),
			Distance: 1 - float64(result.Score),
			Meta: Metadata{
				DocumentID: payload["document_id"].GetStringValue(),
				Filename:   payload["filename"].GetStringValue(),
				ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
				ChunkText:  payload["chunk_text"].GetStringValue(),
			},
		}
	}

	return matches, nil
}
