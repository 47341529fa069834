// Package embed maps text to fixed-dimension dense vectors.
//
// The provider sits behind a narrow interface; the production implementation
// speaks the OpenAI-compatible /embeddings protocol, and a small LRU cache
// wrapper avoids re-embedding repeated queries.
package embed

import (
	"context"
	"math"
	"time"
)

// Batching and timeout defaults.
const (
	// DefaultBatchSize is the default number of texts per embedding request.
	DefaultBatchSize = 32

	// MaxBatchSize caps a single request (prevents memory exhaustion).
	MaxBatchSize = 256

	// DefaultTimeout bounds a single embedding HTTP request.
	DefaultTimeout = 60 * time.Second
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	// Empty text yields the zero vector without a provider call.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in stable order.
	// The result has exactly one vector per input text.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Zero vector stays as-is
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
