package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/skillscan/pkg/matcher"
	"github.com/kittclouds/skillscan/pkg/taxonomy"
)

func testSnapshot(t *testing.T) *taxonomy.Snapshot {
	t.Helper()
	b := taxonomy.NewBuilder(nil)
	b.Add(taxonomy.Entry{PreferredLabel: "Datenbanken verwalten", AltLabels: []string{"SQL"}, URI: "u1"})
	b.Add(taxonomy.Entry{PreferredLabel: "Power BI", URI: "u2"})
	s, err := b.Build(taxonomy.TierStatic, time.Now())
	require.NoError(t, err)
	return s
}

func detect(t *testing.T, d *Detector, text string) []Candidate {
	t.Helper()
	doc := matcher.NewDocument(text)
	defer doc.Release()
	return d.Detect(doc, testSnapshot(t), "Data Engineer")
}

func terms(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Term
	}
	return out
}

func TestDetectUnknownTerms(t *testing.T) {
	d := NewDetector(Config{}, nil)

	got := detect(t, d, "Erfahrung mit Databricks und Snowflake sowie gute Kenntnisse in SQL.")
	assert.Equal(t, []string{"Databricks", "Snowflake"}, terms(got))

	c := got[0]
	assert.Equal(t, "Data Engineer", c.Role)
	assert.Equal(t, taxonomy.LevelDiscovery, c.Level)
	assert.Equal(t, DefaultConfidence, c.Confidence)
	assert.Contains(t, c.Context, "Databricks")
	assert.Equal(t, "Databricks", "Erfahrung mit Databricks und Snowflake sowie gute Kenntnisse in SQL."[c.Start:c.End])
}

func TestDetectOneCandidatePerTerm(t *testing.T) {
	d := NewDetector(Config{}, nil)

	got := detect(t, d, "Databricks im Lakehouse. Wir lieben Databricks!")
	assert.Equal(t, []string{"Databricks", "Lakehouse"}, terms(got))
}

func TestDetectSkipsKnownTermsAndVariants(t *testing.T) {
	d := NewDetector(Config{}, nil)

	got := detect(t, d, "Dashboards in PowerBI und SQL erstellen")
	assert.Equal(t, []string{"Dashboards"}, terms(got))
}

func TestDetectFilters(t *testing.T) {
	d := NewDetector(Config{MinLength: 4}, NewBlacklist("Berichte"))

	// "Go" is too short, "arbeiten" is a verb, "Berichte" is blacklisted.
	got := detect(t, d, "Berichte mit Go arbeiten und Terraform")
	assert.Equal(t, []string{"Terraform"}, terms(got))
}

func TestDetectIgnoresCoveredTokens(t *testing.T) {
	d := NewDetector(Config{}, nil)
	text := "Projekte mit Databricks"
	doc := matcher.NewDocument(text)
	defer doc.Release()
	doc.Cover(13, 23)

	assert.Empty(t, d.Detect(doc, testSnapshot(t), ""))
}

func TestLoadBlacklist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.txt")
	require.NoError(t, os.WriteFile(path, []byte("# noise\nObstkorb\n\n  Tischkicker \n"), 0o644))

	b, err := LoadBlacklist(path)
	require.NoError(t, err)
	assert.True(t, b.Contains("obstkorb"))
	assert.True(t, b.Contains("TISCHKICKER"))
	assert.True(t, b.Contains("Erfahrung"), "built-in noise terms are kept")
	assert.True(t, b.Contains("und"), "stopwords are included")
	assert.False(t, b.Contains("Databricks"))

	b, err = LoadBlacklist(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.True(t, b.Contains("Kenntnisse"))
}

func TestTagger(t *testing.T) {
	tagger := NewTagger()
	words := []Word{
		{Text: "Wir", SentenceStart: true},
		{Text: "entwickeln"},
		{Text: "PostgreSQL"},
		{Text: "Datenbanken"},
		{Text: "mit"},
		{Text: "2"},
		{Text: "neuen"},
		{Text: "testing"},
	}
	tags := tagger.Tag(words)

	assert.Equal(t, Pronoun, tags[0])
	assert.Equal(t, Verb, tags[1])
	assert.Equal(t, ProperNoun, tags[2])
	assert.Equal(t, ProperNoun, tags[3])
	assert.Equal(t, Preposition, tags[4])
	assert.Equal(t, Number, tags[5])
	assert.Equal(t, Adjective, tags[6])
	assert.Equal(t, Noun, tags[7], "a verb after a modifier is a noun")
}
