package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var _ Index = (*MemoryIndex)(nil)

// MemoryIndex is a brute-force cosine index held in memory.
type MemoryIndex struct {
	mu      sync.RWMutex
	labels  []string
	vectors [][]float32 // unit length
	dim     int
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Add stores one vector per label.
func (m *MemoryIndex) Add(ctx context.Context, labels []string, vectors [][]float32) error {
	if len(labels) != len(vectors) {
		return fmt.Errorf("index add: %d labels, %d vectors", len(labels), len(vectors))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, v := range vectors {
		if m.dim == 0 {
			m.dim = len(v)
		}
		if len(v) != m.dim {
			return fmt.Errorf("%w: %q has %d, index has %d", ErrDimensionMismatch, labels[i], len(v), m.dim)
		}
		m.labels = append(m.labels, labels[i])
		m.vectors = append(m.vectors, Normalize(v))
	}
	return nil
}

// Search returns the k labels most similar to query, best first.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.vectors) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != m.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), m.dim)
	}

	q := Normalize(query)
	hits := make([]Hit, len(m.vectors))
	for i, v := range m.vectors {
		var dot float64
		for j := range v {
			dot += float64(v[j]) * float64(q[j])
		}
		hits[i] = Hit{Label: m.labels[i], Score: dot}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Label < hits[j].Label
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of stored vectors.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }
