package taxonomy

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntries() []Entry {
	return []Entry{
		{PreferredLabel: "Datenbanken verwalten", AltLabels: []string{"SQL"}, URI: "u1"},
		{PreferredLabel: "Agile Methodiken anwenden", AltLabels: []string{"Scrum"}, URI: "u2"},
		{PreferredLabel: "Python", URI: "u3", IsDigital: true},
		{PreferredLabel: "Java", URI: "u4", IsDigital: true},
		{PreferredLabel: "JavaScript", URI: "u5", IsDigital: true},
		{PreferredLabel: "Power BI", URI: "u6", IsDigital: true},
		{PreferredLabel: "CI/CD", URI: "u7", IsDigital: true},
	}
}

func buildSnapshot(t *testing.T, entries []Entry, terms ...DomainTerm) *Snapshot {
	t.Helper()
	b := NewBuilder(nil)
	for _, e := range entries {
		b.Add(e)
	}
	for _, term := range terms {
		b.AddDomainTerm(term)
	}
	s, err := b.Build(TierStatic, time.Now())
	require.NoError(t, err)
	return s
}

func TestSnapshotLookupIsCaseAndWhitespaceInsensitive(t *testing.T) {
	s := buildSnapshot(t, testEntries())

	e, ok := s.Lookup("  sql ")
	require.True(t, ok)
	assert.Equal(t, "Datenbanken verwalten", e.PreferredLabel)

	e, ok = s.Lookup("AGILE   methodiken anwenden")
	require.True(t, ok)
	assert.Equal(t, "u2", e.URI)

	_, ok = s.Lookup("Rust")
	assert.False(t, ok)
}

func TestSnapshotFirstWriterWins(t *testing.T) {
	entries := append(testEntries(),
		Entry{PreferredLabel: "python", URI: "dup"},
		Entry{PreferredLabel: "Datenbank-Abfragen", AltLabels: []string{"SQL"}, URI: "u8"},
	)
	s := buildSnapshot(t, entries)

	e, ok := s.Lookup("Python")
	require.True(t, ok)
	assert.Equal(t, "u3", e.URI, "duplicate preferred label keeps the first entry")

	e, ok = s.Lookup("SQL")
	require.True(t, ok)
	assert.Equal(t, "u1", e.URI, "alias conflict keeps the first writer")

	_, ok = s.Lookup("Datenbank-Abfragen")
	assert.True(t, ok)
	assert.Equal(t, len(entries)-1, s.Len())
}

func TestSnapshotLevels(t *testing.T) {
	s := buildSnapshot(t, testEntries(),
		DomainTerm{Term: "SQL", Level: LevelAcademia, Domain: "academia"},
		DomainTerm{Term: "Didaktik", Level: LevelLiterature, Domain: "literature"},
	)

	assert.Equal(t, LevelAcademia, s.LevelOf("SQL"))
	assert.Equal(t, LevelAcademia, s.LevelOf("Datenbanken verwalten"), "claim on an alias counts for its entry")
	assert.Equal(t, LevelStandard, s.LevelOf("Scrum"))
	assert.Equal(t, LevelDigital, s.LevelOf("python"))
	assert.Equal(t, LevelLiterature, s.LevelOf("Didaktik"))
	assert.Equal(t, LevelDiscovery, s.LevelOf("Databricks"))

	e, ok := s.Lookup("SQL")
	require.True(t, ok)
	assert.Equal(t, "Datenbanken verwalten", e.PreferredLabel, "domain terms never shadow an alias")

	e, ok = s.Lookup("Didaktik")
	require.True(t, ok, "unknown domain terms become entries")
	assert.True(t, strings.HasPrefix(e.URI, "urn:skillscan:"))
	assert.Equal(t, "literature", e.SourceDomain)
}

func TestSnapshotRecordsLevelConflicts(t *testing.T) {
	s := buildSnapshot(t, testEntries(),
		DomainTerm{Term: "Machine Learning", Level: LevelLiterature, Domain: "literature"},
		DomainTerm{Term: "machine learning", Level: LevelAcademia, Domain: "academia"},
	)

	conflicts := s.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "machine learning", conflicts[0].Term)
	assert.Equal(t, []int{LevelAcademia, LevelLiterature}, conflicts[0].Levels)
	assert.Equal(t, []string{"academia", "literature"}, conflicts[0].Domains)
	assert.Equal(t, LevelAcademia, s.LevelOf("Machine Learning"), "higher level wins")
}

func TestSnapshotDomainClaimCoversEverySurface(t *testing.T) {
	entries := []Entry{{PreferredLabel: "Datenbanken verwalten", AltLabels: []string{"SQL", "MySQL"}, URI: "u1"}}
	s := buildSnapshot(t, entries,
		DomainTerm{Term: "SQL", Level: LevelAcademia, Domain: "academia"},
	)

	assert.Equal(t, LevelAcademia, s.LevelOf("SQL"))
	assert.Equal(t, LevelAcademia, s.LevelOf("MySQL"))
	assert.Equal(t, LevelAcademia, s.LevelOf("Datenbanken verwalten"))
	assert.Empty(t, s.Conflicts())

	s = buildSnapshot(t, entries,
		DomainTerm{Term: "SQL", Level: LevelAcademia, Domain: "academia"},
		DomainTerm{Term: "MySQL", Level: LevelLiterature, Domain: "literature"},
	)
	conflicts := s.Conflicts()
	require.Len(t, conflicts, 1, "two surfaces of one entry claimed at different levels")
	assert.Equal(t, "datenbanken verwalten", conflicts[0].Term)
	assert.Equal(t, []int{LevelAcademia, LevelLiterature}, conflicts[0].Levels)
	assert.Equal(t, LevelAcademia, s.LevelOf("MySQL"))
}

func TestSnapshotDigitalFlagRaisesSourceLevel(t *testing.T) {
	entries, skipped, err := ParseRecords([]byte(`[{"preferredLabel": "Git verwenden", "uri": "u9", "level": 2, "isDigital": true}]`))
	require.NoError(t, err)
	require.Zero(t, skipped)

	s := buildSnapshot(t, entries)
	assert.True(t, s.IsDigital("Git verwenden"))
	assert.Equal(t, LevelDigital, s.LevelOf("Git verwenden"))
}

func TestSnapshotResolvableThroughVariants(t *testing.T) {
	s := buildSnapshot(t, testEntries())

	assert.True(t, s.Resolvable("PowerBI"), "compact key")
	assert.True(t, s.Resolvable("CI CD"), "loose key")
	assert.True(t, s.Resolvable("scrum"))
	assert.False(t, s.Resolvable("Databricks"))
}

func TestSnapshotScan(t *testing.T) {
	s := buildSnapshot(t, testEntries())

	hits := s.Scan("erfahrung mit javascript und sql")
	var keys []string
	for _, h := range hits {
		keys = append(keys, h.Key)
	}
	assert.Contains(t, keys, "javascript")
	assert.Contains(t, keys, "sql")
	for _, h := range hits {
		if h.Key == "sql" {
			assert.Equal(t, "u1", h.Entry.URI)
		}
	}
}

func TestBuilderAddAlias(t *testing.T) {
	b := NewBuilder(nil)
	for _, e := range testEntries() {
		b.Add(e)
	}
	require.NoError(t, b.AddAlias("PostgreSQL", "SQL"))
	require.NoError(t, b.AddAlias("Databricks", "Cloud-Datenplattformen nutzen"))
	require.ErrorIs(t, b.AddAlias(" ", "Python"), ErrInvalidAlias)

	s, err := b.Build(TierStatic, time.Now())
	require.NoError(t, err)

	e, ok := s.Lookup("postgresql")
	require.True(t, ok)
	assert.Equal(t, "u1", e.URI, "alias of an alias attaches to its entry")

	e, ok = s.Lookup("Databricks")
	require.True(t, ok)
	assert.Equal(t, "Cloud-Datenplattformen nutzen", e.PreferredLabel)
	assert.Equal(t, LevelStandard, e.Level)
	assert.Equal(t, SyntheticURI("discovery", "Cloud-Datenplattformen nutzen"), e.URI)
}

func TestSnapshotVersionsIncrease(t *testing.T) {
	a := buildSnapshot(t, testEntries())
	b := buildSnapshot(t, testEntries())
	assert.Greater(t, b.Version(), a.Version())
}

func TestEmptySnapshotIsQueryable(t *testing.T) {
	s := buildSnapshot(t, nil)
	assert.Nil(t, s.Scan("sql"))
	assert.Equal(t, LevelDiscovery, s.LevelOf("sql"))
	assert.Empty(t, s.AllLabels())
}
