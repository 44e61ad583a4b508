package matcher

import (
	"context"
	"sort"

	"github.com/kittclouds/skillscan/pkg/taxonomy"
	"github.com/kittclouds/skillscan/pkg/textnorm"
)

// Alias is the exact pass: every alias key is found in one Aho-Corasick scan
// of the canonical text, kept only on word boundaries and resolved longest
// first so "Machine Learning Engineer" is never split into shorter hits.
type Alias struct{}

func (Alias) Name() Name { return NameAlias }

func (Alias) Match(ctx context.Context, doc *Document, snap *taxonomy.Snapshot) Outcome {
	hits := snap.Scan(doc.Canon)
	if len(hits) == 0 {
		return Ok(NameAlias, nil)
	}

	valid := hits[:0]
	for _, h := range hits {
		if textnorm.BoundaryBefore(doc.Canon, h.Start) && textnorm.BoundaryAfter(doc.Canon, h.End) {
			valid = append(valid, h)
		}
	}

	sort.SliceStable(valid, func(i, j int) bool {
		li, lj := valid[i].End-valid[i].Start, valid[j].End-valid[j].Start
		if li != lj {
			return li > lj
		}
		return valid[i].Start < valid[j].Start
	})

	var taken []span
	out := make([]Candidate, 0, len(valid))
	for _, h := range valid {
		if overlaps(taken, h.Start, h.End) {
			continue
		}
		start, end := doc.OriginalSpan(h.Start, h.End)
		if doc.Covered(start, end) {
			continue
		}
		taken = append(taken, span{h.Start, h.End})
		out = append(out, Candidate{
			Original: doc.Text[start:end],
			Entry:    h.Entry,
			Start:    start,
			End:      end,
			Score:    1.0,
			Strategy: NameAlias,
		})
	}
	SortBySpan(out)
	return Ok(NameAlias, out)
}

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && s.start < end {
			return true
		}
	}
	return false
}
