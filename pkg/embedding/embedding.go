// Package embedding provides the text embedding port used by the semantic
// match pass, an OpenAI-compatible HTTP client and vector indexes.
package embedding

import (
	"context"
	"errors"
	"math"
)

// ErrDimensionMismatch indicates vectors of different sizes were mixed.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder generates text embeddings. Implementations are created by the
// caller, initialised once with Init and released with Close.
type Embedder interface {
	// Init prepares the embedder and verifies it can serve requests.
	Init(ctx context.Context) error

	// Embed generates embeddings for multiple texts, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query text.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Dimensions returns the embedding dimension size.
	Dimensions() int

	// Model returns the model name being used.
	Model() string

	// HealthCheck verifies the embedder is available.
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the embedder.
	Close() error
}

// Hit is one nearest-neighbour result.
type Hit struct {
	Label string
	Score float64 // cosine similarity
}

// Index stores label vectors and answers top-k cosine queries.
type Index interface {
	Add(ctx context.Context, labels []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Len() int
	Close() error
}

// Stored is implemented by indexes that keep vectors between runs. Missing
// returns the labels that have no vector yet, in input order.
type Stored interface {
	Missing(ctx context.Context, labels []string) ([]string, error)
}

// Normalize returns v scaled to unit length. A zero vector is returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	n := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// Cosine returns the cosine similarity of a and b.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
