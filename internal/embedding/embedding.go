// Package embedding generates vector embeddings for document chunks and
// queries through a rate-limited remote service.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
	"unicode/utf8"
)

const (
	// InputLimitChars is a conservative input ceiling (~7.5K tokens).
	// Longer text is truncated before submission, not rejected.
	InputLimitChars = 30_000

	// maxRetries is the number of retries after the initial attempt.
	maxRetries = 5

	// maxBackoff caps a single backoff wait.
	maxBackoff = 30 * time.Second

	// throttleEvery / throttlePause add a short pause between groups of
	// sequential batch requests as an extra rate-limit guard.
	throttleEvery = 20
	throttlePause = 100 * time.Millisecond
)

// ErrRateLimited signals a transient throttling response from the
// embedding service. The client retries these with backoff; all other
// failures propagate immediately.
var ErrRateLimited = errors.New("embedding service rate limited")

// Service is the remote embedding provider.
type Service interface {
	Invoke(ctx context.Context, modelID, text string, dimensions int) ([]float32, error)
}

// Client generates embeddings with truncation, retry, and batch
// throttling on top of a Service. Safe for concurrent use.
type Client struct {
	service    Service
	modelID    string
	dimensions int
	logger     *slog.Logger

	// Injectable for deterministic tests.
	sleep  func(time.Duration)
	jitter func() float64
}

// NewClient creates an embedding client for the given model and vector
// dimensionality.
func NewClient(service Service, modelID string, dimensions int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		service:    service,
		modelID:    modelID,
		dimensions: dimensions,
		logger:     logger,
		sleep:      time.Sleep,
		jitter:     rand.Float64,
	}
}

// Embed generates a single embedding vector. Input over InputLimitChars
// is truncated. Rate-limit responses are retried up to maxRetries times
// with exponential backoff plus jitter; any other failure propagates
// without retry.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > InputLimitChars {
		cut := InputLimitChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		c.logger.Warn("Truncating embedding input", "from", len(text), "to", cut)
		text = text[:cut]
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		vector, err := c.service.Invoke(ctx, c.modelID, text, c.dimensions)
		if err == nil {
			return vector, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		lastErr = err

		if attempt < maxRetries {
			delay := backoffDelay(attempt, c.jitter())
			c.logger.Warn("Throttled generating embedding", "attempt", attempt+1, "delay", delay)
			c.sleep(delay)
		}
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", maxRetries+1, lastErr)
}

// EmbedBatch generates one embedding per input text, in order. Requests
// run sequentially to respect the provider's throughput budget, with a
// short pause every throttleEvery items. The first failure aborts the
// whole batch; no partial result is returned.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vector, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d of %d: %w", i, len(texts), err)
		}
		vectors = append(vectors, vector)

		if i > 0 && i%throttleEvery == 0 {
			c.logger.Info("Embedding progress", "done", i, "total", len(texts))
			c.sleep(throttlePause)
		}
	}

	c.logger.Info("Generated embeddings", "count", len(vectors))
	return vectors, nil
}

// backoffDelay computes 2^attempt seconds plus jitter in [0,1) seconds,
// capped at maxBackoff.
func backoffDelay(attempt int, jitter float64) time.Duration {
	d := time.Duration((math.Pow(2, float64(attempt)) + jitter) * float64(time.Second))
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
