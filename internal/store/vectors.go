package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kittclouds/skillscan/pkg/embedding"
)

var (
	_ embedding.Index  = (*VectorIndex)(nil)
	_ embedding.Stored = (*VectorIndex)(nil)
)

var vectorNamespace = uuid.MustParse("0b7d9f4e-6a2c-4f31-8e5d-2c9a7b1e4f60")

// VectorIndex is an embedding.Index over the label_vectors table, ranked by
// sqlite-vec's vec_distance_cosine. Its id is derived from the model and the
// label pool, so a later run over the same pool finds its vectors in place.
type VectorIndex struct {
	s     *SQLiteStore
	id    string
	model string
	dim   int
	n     atomic.Int64
}

// VectorIndexID returns the id of the index for labels embedded with model.
// Label order does not matter.
func VectorIndexID(model string, labels []string) string {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	return uuid.NewSHA1(vectorNamespace, []byte(model+"\x00"+strings.Join(sorted, "\n"))).String()
}

// NewVectorIndex opens the index for labels embedded with model, keeping the
// vectors already stored under its id. Rows of older indexes of the same
// model are dropped, including those left behind by a crashed run.
func (s *SQLiteStore) NewVectorIndex(ctx context.Context, model string, labels []string) (*VectorIndex, error) {
	v := &VectorIndex{s: s, id: VectorIndexID(model, labels), model: model}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errClosed
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM label_vectors WHERE model = ? AND index_id <> ?", model, v.id); err != nil {
		return nil, fmt.Errorf("drop stale label vectors: %w", err)
	}

	var n, dim int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MAX(dim), 0) FROM label_vectors WHERE index_id = ?", v.id).Scan(&n, &dim)
	if err != nil {
		return nil, fmt.Errorf("open label vectors: %w", err)
	}
	v.n.Store(n)
	v.dim = int(dim)
	return v, nil
}

// Missing returns the labels without a stored vector.
func (v *VectorIndex) Missing(ctx context.Context, labels []string) ([]string, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if v.s.db == nil {
		return nil, errClosed
	}

	rows, err := v.s.db.QueryContext(ctx, "SELECT label FROM label_vectors WHERE index_id = ?", v.id)
	if err != nil {
		return nil, fmt.Errorf("list label vectors: %w", err)
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		have[label] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []string
	for _, l := range labels {
		if !have[l] {
			out = append(out, l)
		}
	}
	return out, nil
}

// Add stores one vector per label. Vectors are written as float32 blobs
// through vec_f32.
func (v *VectorIndex) Add(ctx context.Context, labels []string, vectors [][]float32) error {
	if len(labels) != len(vectors) {
		return fmt.Errorf("index add: %d labels, %d vectors", len(labels), len(vectors))
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.db == nil {
		return errClosed
	}

	tx, err := v.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vector insert: %w", err)
	}
	defer tx.Rollback()

	dim := v.dim
	added := 0
	for i, vec := range vectors {
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			return fmt.Errorf("%w: %q has %d, index has %d", embedding.ErrDimensionMismatch, labels[i], len(vec), dim)
		}
		data, err := json.Marshal(vec)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO label_vectors (index_id, model, label, dim, embedding) VALUES (?, ?, ?, ?, vec_f32(?))
			ON CONFLICT(index_id, label) DO NOTHING
		`, v.id, v.model, labels[i], dim, string(data))
		if err != nil {
			return fmt.Errorf("insert vector %q: %w", labels[i], err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	v.dim = dim
	v.n.Add(int64(added))
	return nil
}

// Search returns the k labels most similar to query, best first.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]embedding.Hit, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if v.s.db == nil {
		return nil, errClosed
	}
	if v.n.Load() == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != v.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", embedding.ErrDimensionMismatch, len(query), v.dim)
	}

	data, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	rows, err := v.s.db.QueryContext(ctx, `
		SELECT label, vec_distance_cosine(embedding, vec_f32(?)) AS distance
		FROM label_vectors
		WHERE index_id = ?
		ORDER BY distance, label
		LIMIT ?
	`, string(data), v.id, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []embedding.Hit
	for rows.Next() {
		var h embedding.Hit
		var distance float64
		if err := rows.Scan(&h.Label, &distance); err != nil {
			return nil, fmt.Errorf("scan vector hit: %w", err)
		}
		h.Score = 1 - distance
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Len returns the number of stored vectors.
func (v *VectorIndex) Len() int { return int(v.n.Load()) }

// Close releases the index. Its rows stay for the next run; the store
// drops them once an index over another label pool is opened.
func (v *VectorIndex) Close() error { return nil }
