package pipeline

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kittclouds/skillscan/pkg/discovery"
	"github.com/kittclouds/skillscan/pkg/matcher"
	"github.com/kittclouds/skillscan/pkg/taxonomy"
)

// CompetenceMatch is one competence found in a document.
type CompetenceMatch struct {
	OriginalTerm   string       `json:"original_term"`
	CanonicalLabel string       `json:"canonical_label"`
	URI            string       `json:"uri"`
	Level          int          `json:"level"`
	IsDigital      bool         `json:"is_digital"`
	Confidence     float64      `json:"confidence"`
	SourceStrategy matcher.Name `json:"source_strategy"`
	RoleContext    string       `json:"role_context"`
	Start          int          `json:"start"` // -1 when the match has no text span
	End            int          `json:"end"`
}

// RecordHeader names the columns of Record.
var RecordHeader = []string{
	"original_term", "canonical_label", "uri", "level",
	"is_digital", "confidence", "source_strategy", "role_context",
}

// Record returns the match as a flat row in RecordHeader order.
func (m CompetenceMatch) Record() []string {
	return []string{
		m.OriginalTerm,
		m.CanonicalLabel,
		m.URI,
		strconv.Itoa(m.Level),
		strconv.FormatBool(m.IsDigital),
		strconv.FormatFloat(m.Confidence, 'f', 3, 64),
		string(m.SourceStrategy),
		m.RoleContext,
	}
}

// HasSpan reports whether the match is anchored in the text.
func (m CompetenceMatch) HasSpan() bool { return m.Start >= 0 && m.End > m.Start }

// merger collects matches across passes, at most one per canonical label.
type merger struct {
	snap    *taxonomy.Snapshot
	role    string
	byLabel map[string]int
	matches []CompetenceMatch
}

func newMerger(snap *taxonomy.Snapshot, role string) *merger {
	return &merger{snap: snap, role: role, byLabel: make(map[string]int)}
}

// add accepts c unless its canonical label was already matched. A duplicate
// may only fill in a missing URI. It reports whether c was accepted.
func (m *merger) add(c matcher.Candidate) bool {
	label := c.Entry.PreferredLabel
	if label == "" {
		return false
	}
	key := strings.ToLower(label)
	if i, ok := m.byLabel[key]; ok {
		if m.matches[i].URI == "" && c.Entry.URI != "" {
			m.matches[i].URI = c.Entry.URI
		}
		return false
	}

	level := max(m.snap.LevelOf(c.Original), m.snap.LevelOf(label))
	m.byLabel[key] = len(m.matches)
	m.matches = append(m.matches, CompetenceMatch{
		OriginalTerm:   c.Original,
		CanonicalLabel: label,
		URI:            c.Entry.URI,
		Level:          level,
		IsDigital:      c.Entry.IsDigital,
		Confidence:     clamp01(c.Score),
		SourceStrategy: c.Strategy,
		RoleContext:    m.role,
		Start:          c.Start,
		End:            c.End,
	})
	return true
}

// addDiscovery appends an unknown term as a discovery-level match.
func (m *merger) addDiscovery(d discovery.Candidate) bool {
	key := strings.ToLower(d.Term)
	if _, ok := m.byLabel[key]; ok {
		return false
	}
	m.byLabel[key] = len(m.matches)
	m.matches = append(m.matches, CompetenceMatch{
		OriginalTerm:   d.Term,
		CanonicalLabel: d.Term,
		Level:          taxonomy.LevelDiscovery,
		Confidence:     clamp01(d.Confidence),
		SourceStrategy: matcher.NameDiscovery,
		RoleContext:    m.role,
		Start:          d.Start,
		End:            d.End,
	})
	return true
}

// result orders matches by first offset in the text; matches without a span
// follow, best score first.
func (m *merger) result() []CompetenceMatch {
	out := m.matches
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.HasSpan() != b.HasSpan() {
			return a.HasSpan()
		}
		if a.HasSpan() {
			if a.Start != b.Start {
				return a.Start < b.Start
			}
			return a.End > b.End
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.CanonicalLabel < b.CanonicalLabel
	})
	return out
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
