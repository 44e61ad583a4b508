package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	aliases map[string]string
}

func (s *fakeSink) AddAlias(_ context.Context, term, canonical string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aliases == nil {
		s.aliases = make(map[string]string)
	}
	s.aliases[term] = canonical
	return nil
}

type recordingLocker struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingLocker) Lock(_ context.Context, name string) (func(), error) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	return func() {}, nil
}

type rowBackend struct {
	*JSONFile
}

func (rowBackend) LockPerKey() bool { return true }

func newFileLedger(t *testing.T, opts ...Option) (*Ledger, string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	ignore := filepath.Join(dir, "ignore.txt")
	return New(NewJSONFile(path, ignore, nil), opts...), path, ignore
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestRecord_CountsAcrossRuns(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)

	l, path, ignore := newFileLedger(t, WithClock(fixedClock(t0)))
	require.NoError(t, l.Record(ctx, []Candidate{{Term: "Databricks", Role: "Data Engineer", Context: "Erfahrung mit Databricks"}}))

	// A second process over the same files, one day later.
	l2 := New(NewJSONFile(path, ignore, nil), WithClock(fixedClock(t1)))
	require.NoError(t, l2.Record(ctx, []Candidate{{Term: "databricks", Role: "Data Engineer"}}))

	pending, err := l2.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Databricks", pending[0].Term)
	assert.Equal(t, 2, pending[0].Count)
	assert.Equal(t, "Erfahrung mit Databricks", pending[0].Context)
	assert.True(t, pending[0].FirstSeen.Equal(t0))
	assert.True(t, pending[0].LastSeen.Equal(t1))
}

func TestRecord_RolesKeptApart(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newFileLedger(t)

	require.NoError(t, l.Record(ctx, []Candidate{
		{Term: "Snowflake", Role: "Data Engineer"},
		{Term: "Snowflake", Role: "Analyst"},
		{Term: "Snowflake", Role: "Analyst"},
	}))

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "Analyst", pending[0].Role)
	assert.Equal(t, 2, pending[0].Count)
	assert.Equal(t, 1, pending[1].Count)
}

func TestIgnore_SuppressesFutureSightings(t *testing.T) {
	ctx := context.Background()
	l, _, ignore := newFileLedger(t)

	require.NoError(t, l.Record(ctx, []Candidate{{Term: "Kickertisch", Role: "Dev"}}))
	require.NoError(t, l.Ignore(ctx, "Kickertisch"))

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, l.Record(ctx, []Candidate{{Term: "kickertisch", Role: "Dev"}}))
	pending, err = l.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	data, err := os.ReadFile(ignore)
	require.NoError(t, err)
	assert.Equal(t, "Kickertisch\n", string(data))

	// Ignoring twice does not duplicate the line.
	require.NoError(t, l.Ignore(ctx, "KICKERTISCH"))
	data, err = os.ReadFile(ignore)
	require.NoError(t, err)
	assert.Equal(t, "Kickertisch\n", string(data))
}

func TestIgnore_HandEditedList(t *testing.T) {
	ctx := context.Background()
	l, _, ignore := newFileLedger(t)
	require.NoError(t, os.WriteFile(ignore, []byte("# reviewed 2026-03\nObstkorb\n\n  Homeoffice  \n"), 0o644))

	require.NoError(t, l.Record(ctx, []Candidate{
		{Term: "Obstkorb", Role: "Dev"},
		{Term: "homeoffice", Role: "Dev"},
		{Term: "Databricks", Role: "Dev"},
	}))

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Databricks", pending[0].Term)
}

func TestIgnore_HandEditAfterSighting(t *testing.T) {
	ctx := context.Background()
	l, _, ignore := newFileLedger(t)

	require.NoError(t, l.Record(ctx, []Candidate{
		{Term: "Obstkorb", Role: "Dev"},
		{Term: "Databricks", Role: "Dev"},
	}))
	require.NoError(t, os.WriteFile(ignore, []byte("Obstkorb\n"), 0o644))
	require.NoError(t, l.Record(ctx, []Candidate{{Term: "Obstkorb", Role: "Dev"}}))

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Databricks", pending[0].Term)
}

func TestApprove_HandEditedLedgerHidesPending(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	l := New(NewJSONFile(path, "", nil))

	require.NoError(t, l.Record(ctx, []Candidate{{Term: "PBI", Role: "Analyst"}}))
	// Approval written by hand next to the pending row.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc ledgerDoc
	require.NoError(t, json.Unmarshal(data, &doc))
	doc.Approved = append(doc.Approved, Approval{Term: "pbi", Canonical: "Power BI"})
	data, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// racingBackend starts an Ignore of term the first time the ignore list is
// read, i.e. while Record is between its check and its merge.
type racingBackend struct {
	Backend
	perKey bool
	ledger *Ledger
	term   string
	once   sync.Once
	done   chan error
}

func (b *racingBackend) LockPerKey() bool { return b.perKey }

func (b *racingBackend) Ignored(ctx context.Context) (map[string]bool, error) {
	b.once.Do(func() {
		go func() { b.done <- b.ledger.Ignore(ctx, b.term) }()
	})
	return b.Backend.Ignored(ctx)
}

func TestRecord_ConcurrentIgnoreWins(t *testing.T) {
	for _, perKey := range []bool{false, true} {
		t.Run(fmt.Sprintf("perKey=%v", perKey), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			b := &racingBackend{
				Backend: NewJSONFile(filepath.Join(dir, "ledger.json"), filepath.Join(dir, "ignore.txt"), nil),
				perKey:  perKey,
				term:    "Obstkorb",
				done:    make(chan error, 1),
			}
			l := New(b)
			b.ledger = l

			require.NoError(t, l.Record(ctx, []Candidate{{Term: "Obstkorb", Role: "Dev"}}))
			select {
			case err := <-b.done:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("ignore did not finish")
			}

			ignored, err := b.Backend.Ignored(ctx)
			require.NoError(t, err)
			assert.True(t, ignored["obstkorb"])

			rows, err := b.Backend.Pending(ctx)
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestApprove_AppliesAndReplays(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	l, path, ignore := newFileLedger(t, WithAliasSink(sink))

	require.NoError(t, l.Record(ctx, []Candidate{{Term: "Databricks", Role: "Data Engineer"}}))
	require.NoError(t, l.Approve(ctx, "Databricks", "Databricks"))

	assert.Equal(t, "Databricks", sink.aliases["Databricks"])

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Approved terms are no longer recorded as discoveries.
	require.NoError(t, l.Record(ctx, []Candidate{{Term: "Databricks", Role: "Data Engineer"}}))
	pending, err = l.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	restarted := &fakeSink{}
	l2 := New(NewJSONFile(path, ignore, nil), WithAliasSink(restarted))
	n, err := l2.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Databricks", restarted.aliases["Databricks"])
}

func TestApprove_ReplacesEarlierDecision(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newFileLedger(t)

	require.NoError(t, l.Approve(ctx, "PBI", "Power BI"))
	require.NoError(t, l.Approve(ctx, "pbi", "Microsoft Power BI"))

	approved, err := l.Approved(ctx)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "Microsoft Power BI", approved[0].Canonical)
}

func TestApprove_InvalidTerm(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newFileLedger(t)

	assert.ErrorIs(t, l.Approve(ctx, "  ", "Python"), ErrInvalidTerm)
	assert.ErrorIs(t, l.Approve(ctx, "Py", ""), ErrInvalidTerm)
	assert.ErrorIs(t, l.Ignore(ctx, "..."), ErrInvalidTerm)
}

func TestJSONFile_CorruptStateStartsEmpty(t *testing.T) {
	ctx := context.Background()
	l, path, _ := newFileLedger(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	require.NoError(t, l.Record(ctx, []Candidate{{Term: "Databricks", Role: "Dev"}}))
	pending, err = l.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestLocking_DocumentVersusRows(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	batch := []Candidate{{Term: "Snowflake", Role: "Dev"}, {Term: "Databricks", Role: "Dev"}}

	doc := &recordingLocker{}
	l := New(NewJSONFile(filepath.Join(dir, "a.json"), "", nil), WithLocker(doc))
	require.NoError(t, l.Record(ctx, batch))
	assert.Equal(t, []string{"ledger"}, doc.names)

	rows := &recordingLocker{}
	l = New(rowBackend{NewJSONFile(filepath.Join(dir, "b.json"), "", nil)}, WithLocker(rows))
	require.NoError(t, l.Record(ctx, batch))
	require.NoError(t, l.Approve(ctx, "Snowflake", "Snowflake"))
	assert.Equal(t, []string{"term:databricks", "term:snowflake", "term:snowflake"}, rows.names)
}

func TestMergeCandidate(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := Candidate{Term: "Dbt", Role: "Dev", Count: 3, FirstSeen: t0.Add(time.Hour), LastSeen: t0.Add(2 * time.Hour)}
	b := Candidate{Term: "dbt", Role: "Dev", Count: 2, Context: "dbt models", FirstSeen: t0, LastSeen: t0.Add(time.Minute)}

	m := MergeCandidate(a, b)
	assert.Equal(t, 5, m.Count)
	assert.Equal(t, "Dbt", m.Term)
	assert.Equal(t, "dbt models", m.Context)
	assert.True(t, m.FirstSeen.Equal(t0))
	assert.True(t, m.LastSeen.Equal(t0.Add(2*time.Hour)))
}
