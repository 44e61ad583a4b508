package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kittclouds/skillscan/pkg/embedding"
	"github.com/kittclouds/skillscan/pkg/ledger"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMergeAddsCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first := ledger.Candidate{Term: "Databricks", Role: "Data Engineer", Count: 1, Context: "mit Databricks", FirstSeen: t0, LastSeen: t0}
	second := ledger.Candidate{Term: "databricks", Role: "Data Engineer", Count: 2, FirstSeen: t0.Add(-time.Hour), LastSeen: t0.Add(time.Hour)}
	if err := s.Merge(ctx, []ledger.Candidate{first}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if err := s.Merge(ctx, []ledger.Candidate{second}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	pending, err := s.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending row, got %d", len(pending))
	}
	got := pending[0]
	if got.Term != "Databricks" || got.Count != 3 {
		t.Errorf("Expected Databricks x3, got %s x%d", got.Term, got.Count)
	}
	if got.Context != "mit Databricks" {
		t.Errorf("Expected first context to be kept, got %q", got.Context)
	}
	if !got.FirstSeen.Equal(t0.Add(-time.Hour)) || !got.LastSeen.Equal(t0.Add(time.Hour)) {
		t.Errorf("Sighting window not widened: %v .. %v", got.FirstSeen, got.LastSeen)
	}
}

func TestIgnoreAndApproveDropPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rows := []ledger.Candidate{
		{Term: "Snowflake", Role: "Dev", Count: 1, FirstSeen: now, LastSeen: now},
		{Term: "Snowflake", Role: "Analyst", Count: 1, FirstSeen: now, LastSeen: now},
		{Term: "Databricks", Role: "Dev", Count: 1, FirstSeen: now, LastSeen: now},
	}
	if err := s.Merge(ctx, rows); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if err := s.AddIgnored(ctx, "SNOWFLAKE"); err != nil {
		t.Fatalf("AddIgnored failed: %v", err)
	}
	if err := s.AddIgnored(ctx, "snowflake"); err != nil {
		t.Fatalf("AddIgnored twice failed: %v", err)
	}
	ignored, err := s.Ignored(ctx)
	if err != nil {
		t.Fatalf("Ignored failed: %v", err)
	}
	if !ignored["snowflake"] || len(ignored) != 1 {
		t.Errorf("Unexpected ignore list: %v", ignored)
	}

	if err := s.Approve(ctx, ledger.Approval{Term: "Databricks", Canonical: "Databricks", ApprovedAt: now}); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if err := s.Approve(ctx, ledger.Approval{Term: "databricks", Canonical: "Databricks Lakehouse", ApprovedAt: now.Add(time.Second)}); err != nil {
		t.Fatalf("Approve update failed: %v", err)
	}

	pending, _ := s.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("Expected no pending rows, got %v", pending)
	}
	approved, err := s.Approved(ctx)
	if err != nil {
		t.Fatalf("Approved failed: %v", err)
	}
	if len(approved) != 1 || approved[0].Canonical != "Databricks Lakehouse" {
		t.Errorf("Unexpected approvals: %v", approved)
	}
}

func TestLedgerOverStore(t *testing.T) {
	s, err := NewSQLiteStoreWithDSN(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	ctx := context.Background()

	l := ledger.New(s)
	for i := 0; i < 2; i++ {
		if err := l.Record(ctx, []ledger.Candidate{{Term: "Databricks", Role: "Data Engineer"}}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	pending, err := l.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Count != 2 {
		t.Fatalf("Expected Databricks x2, got %v", pending)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.Pending(ctx); !errors.Is(err, errClosed) {
		t.Errorf("Expected errClosed after Close, got %v", err)
	}
}

func TestVectorIndexSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	labels := []string{"Python", "Java", "Projektmanagement"}
	idx, err := s.NewVectorIndex(ctx, "test-model", labels)
	if err != nil {
		t.Fatalf("NewVectorIndex failed: %v", err)
	}
	vectors := [][]float32{{1, 0, 0}, {0.6, 0.8, 0}, {0, 0, 1}}
	if err := idx.Add(ctx, labels, vectors); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if idx.Len() != 3 {
		t.Fatalf("Expected 3 vectors, got %d", idx.Len())
	}

	hits, err := idx.Search(ctx, []float32{2, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}
	if hits[0].Label != "Python" || hits[0].Score < 0.999 {
		t.Errorf("Expected Python first with score ~1, got %+v", hits[0])
	}
	if hits[1].Label != "Java" || hits[1].Score < 0.59 || hits[1].Score > 0.61 {
		t.Errorf("Expected Java second with score ~0.6, got %+v", hits[1])
	}

	if _, err := idx.Search(ctx, []float32{1, 0}, 1); !errors.Is(err, embedding.ErrDimensionMismatch) {
		t.Errorf("Expected dimension mismatch, got %v", err)
	}
}

func TestVectorIndexesAreIsolatedByModel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.NewVectorIndex(ctx, "model-a", []string{"SQL"})
	if err != nil {
		t.Fatalf("NewVectorIndex failed: %v", err)
	}
	if err := a.Add(ctx, []string{"SQL"}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	b, err := s.NewVectorIndex(ctx, "model-b", []string{"Scrum"})
	if err != nil {
		t.Fatalf("NewVectorIndex failed: %v", err)
	}
	if err := b.Add(ctx, []string{"Scrum"}, [][]float32{{0, 1}}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	hits, err := b.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Label != "Scrum" {
		t.Errorf("Index leaked rows: %+v", hits)
	}
	hits, _ = a.Search(ctx, []float32{1, 0}, 5)
	if len(hits) != 1 || hits[0].Label != "SQL" {
		t.Errorf("Opening another model's index affected this one: %+v", hits)
	}
}

func countVectors(t *testing.T, s *SQLiteStore) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM label_vectors").Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func TestVectorIndexReusedAcrossRuns(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "vectors.db")
	labels := []string{"Python", "Java"}

	s, err := NewSQLiteStoreWithDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	idx, err := s.NewVectorIndex(ctx, "test-model", labels)
	if err != nil {
		t.Fatalf("NewVectorIndex failed: %v", err)
	}
	if err := idx.Add(ctx, labels, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	idx.Close()
	s.Close()

	// Next run: same model, same pool in another order.
	s, err = NewSQLiteStoreWithDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()
	idx, err = s.NewVectorIndex(ctx, "test-model", []string{"Java", "Python"})
	if err != nil {
		t.Fatalf("NewVectorIndex failed: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("Expected 2 stored vectors, got %d", idx.Len())
	}
	missing, err := idx.Missing(ctx, []string{"Java", "Python", "Go"})
	if err != nil {
		t.Fatalf("Missing failed: %v", err)
	}
	if len(missing) != 1 || missing[0] != "Go" {
		t.Errorf("Expected only Go missing, got %v", missing)
	}
	hits, err := idx.Search(ctx, []float32{0, 1}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Label != "Java" {
		t.Errorf("Expected Java from stored vectors, got %+v", hits)
	}

	// A new label pool replaces the model's older rows.
	if _, err := s.NewVectorIndex(ctx, "test-model", []string{"Python", "Java", "Go"}); err != nil {
		t.Fatalf("NewVectorIndex failed: %v", err)
	}
	if n := countVectors(t, s); n != 0 {
		t.Errorf("Expected stale rows dropped, %d left", n)
	}
}
