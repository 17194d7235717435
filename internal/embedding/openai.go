package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/openai/openai-go"
)

// OpenAIService implements Service against the OpenAI embeddings API.
type OpenAIService struct {
	client *openai.Client
}

// NewOpenAIService creates the OpenAI-backed embedding service. It
// requires OPENAI_API_KEY in the environment.
func NewOpenAIService() (*OpenAIService, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	// openai-go reads OPENAI_API_KEY from the environment.
	client := openai.NewClient()

	return &OpenAIService{client: &client}, nil
}

// Invoke requests a single embedding. HTTP 429 responses are mapped to
// ErrRateLimited so the caller's retry loop can distinguish them.
func (s *OpenAIService) Invoke(ctx context.Context, modelID, text string, dimensions int) ([]float32, error) {
	resp, err := s.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model:      openai.EmbeddingModel(modelID),
		Dimensions: openai.Int(int64(dimensions)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("embeddings request: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings response contained no vectors")
	}

	return toFloat32(resp.Data[0].Embedding), nil
}

// toFloat32 converts the API's float64 vector to float32 for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
