package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/skillscan/pkg/ledger"
	"github.com/kittclouds/skillscan/pkg/matcher"
	"github.com/kittclouds/skillscan/pkg/pipeline"
	"github.com/kittclouds/skillscan/pkg/taxonomy"
)

type fixture struct {
	dir    string
	repo   *taxonomy.TieredRepository
	engine *Engine
}

// newFixture builds an engine over the minimal taxonomy and a JSON ledger in
// dir, the way a fresh process would.
func newFixture(t *testing.T, dir string) *fixture {
	t.Helper()
	ctx := context.Background()

	repo := taxonomy.NewTieredRepository(taxonomy.Config{})
	p, err := pipeline.New(repo, pipeline.Config{})
	require.NoError(t, err)
	backend := ledger.NewJSONFile(filepath.Join(dir, "ledger.json"), filepath.Join(dir, "ignore.txt"), nil)
	l := ledger.New(backend, ledger.WithAliasSink(repo))

	e, err := New(ctx, repo, p, l)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return &fixture{dir: dir, repo: repo, engine: e}
}

func TestDiscoveryRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f := newFixture(t, dir)
	text := "Erfahrung mit Databricks und SQL."

	for i := 0; i < 2; i++ {
		res, err := f.engine.Process(ctx, text, "Data Engineer")
		require.NoError(t, err)
		for _, m := range res.Matches {
			assert.NotEqual(t, "Databricks", m.CanonicalLabel)
		}
	}

	pending, err := f.engine.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Databricks", pending[0].Term)
	assert.Equal(t, "Data Engineer", pending[0].Role)
	assert.Equal(t, 2, pending[0].Count)
	assert.Contains(t, pending[0].Context, "Databricks")

	require.NoError(t, f.engine.Approve(ctx, "Databricks", "Databricks"))

	res, err := f.engine.Process(ctx, text, "Data Engineer")
	require.NoError(t, err)
	var found *pipeline.CompetenceMatch
	for i := range res.Matches {
		if res.Matches[i].CanonicalLabel == "Databricks" {
			found = &res.Matches[i]
		}
	}
	require.NotNil(t, found, "approved term is matched")
	assert.Equal(t, matcher.NameAlias, found.SourceStrategy)
	assert.Equal(t, taxonomy.LevelStandard, found.Level)
	assert.NotEmpty(t, found.URI)

	pending, err = f.engine.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A restarted process replays the approval into its own repository.
	restarted := newFixture(t, dir)
	_, ok := restarted.repo.Lookup("databricks")
	assert.True(t, ok)
}

func TestIgnoredTermsStaySuppressed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())
	text := "Wir arbeiten mit Snowflake und Python."

	_, err := f.engine.Process(ctx, text, "Analyst")
	require.NoError(t, err)
	require.NoError(t, f.engine.Ignore(ctx, "Snowflake"))

	_, err = f.engine.Process(ctx, text, "Analyst")
	require.NoError(t, err)
	pending, err := f.engine.Pending(ctx)
	require.NoError(t, err)
	for _, c := range pending {
		assert.NotEqual(t, "Snowflake", c.Term)
	}
}

func TestProcessBatchRecordsAllDiscoveries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())

	results, err := f.engine.ProcessBatch(ctx, []pipeline.Input{
		{Text: "Erfahrung mit Databricks.", Role: "Dev"},
		{Text: "Databricks und SQL.", Role: "Dev"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	pending, err := f.engine.Pending(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, pending)
	assert.Equal(t, "Databricks", pending[0].Term)
	assert.Equal(t, 2, pending[0].Count)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(context.Background(), nil, nil, nil)
	assert.Error(t, err)
}
