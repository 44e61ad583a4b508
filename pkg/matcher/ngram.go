package matcher

import (
	"context"
	"strings"

	"github.com/kittclouds/skillscan/pkg/pool"
	"github.com/kittclouds/skillscan/pkg/taxonomy"
	"github.com/kittclouds/skillscan/pkg/textnorm"
)

// DefaultMaxWindow is the widest n-gram window.
const DefaultMaxWindow = 3

// NGram slides 3-, 2- and 1-token windows over the unmatched tokens and looks
// each window up whole in the loose and compact indexes, catching variants
// the alias pass cannot: "Machine-Learning", "PowerBI", "CI / CD". Whole
// window lookup keeps "java" from matching inside "javascript".
type NGram struct {
	MaxWindow int
}

func (NGram) Name() Name { return NameNGram }

func (n NGram) Match(ctx context.Context, doc *Document, snap *taxonomy.Snapshot) Outcome {
	maxWindow := n.MaxWindow
	if maxWindow <= 0 {
		maxWindow = DefaultMaxWindow
	}

	free := make([]bool, len(doc.Tokens))
	for _, i := range doc.Uncovered() {
		free[i] = true
	}

	buf := pool.GetStrings()
	defer pool.PutStrings(buf)

	var out []Candidate
	for w := maxWindow; w >= 1; w-- {
		for i := 0; i+w <= len(doc.Tokens); i++ {
			if !allFree(free[i : i+w]) {
				continue
			}

			parts := (*buf)[:0]
			for _, t := range doc.Tokens[i : i+w] {
				parts = append(parts, t.Raw)
			}
			*buf = parts
			loose := textnorm.Loose(strings.Join(parts, " "))

			entry, ok := lookupVariant(snap, loose)
			if !ok {
				continue
			}
			start, end := doc.Tokens[i].Start, doc.Tokens[i+w-1].End
			out = append(out, Candidate{
				Original: doc.Text[start:end],
				Entry:    entry,
				Start:    start,
				End:      end,
				Score:    1.0,
				Strategy: NameNGram,
			})
			for j := i; j < i+w; j++ {
				free[j] = false
			}
		}
	}
	SortBySpan(out)
	return Ok(NameNGram, out)
}

func lookupVariant(snap *taxonomy.Snapshot, loose string) (taxonomy.Entry, bool) {
	if loose == "" {
		return taxonomy.Entry{}, false
	}
	if e, ok := snap.LookupLoose(loose); ok {
		return e, true
	}
	return snap.LookupCompact(strings.ReplaceAll(loose, " ", ""))
}

func allFree(free []bool) bool {
	for _, f := range free {
		if !f {
			return false
		}
	}
	return true
}
