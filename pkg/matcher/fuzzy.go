package matcher

import (
	"context"
	"sort"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"

	"github.com/kittclouds/skillscan/pkg/taxonomy"
	"github.com/kittclouds/skillscan/pkg/textnorm"
)

// Fuzzy defaults.
const (
	DefaultFuzzyThreshold = 80.0
	DefaultMaxFuzzyTokens = 500
	DefaultFuzzyMinLength = 4
)

// Fuzzy corrects misspellings of single tokens the earlier passes left
// unmatched. Similarity is the LCS ratio 2*LCS/(|a|+|b|) on a 0..100 scale.
type Fuzzy struct {
	Threshold float64 // accept at or above, 0..100
	MaxTokens int     // distinct tokens considered, longest first
	MinLength int     // runes
}

// NewFuzzy creates a fuzzy pass with default bounds.
func NewFuzzy(threshold float64) *Fuzzy {
	return &Fuzzy{Threshold: threshold, MaxTokens: DefaultMaxFuzzyTokens, MinLength: DefaultFuzzyMinLength}
}

func (f *Fuzzy) Name() Name { return NameFuzzy }

type fuzzyToken struct {
	key   string
	runes int
	idx   []int // token indexes with this key
}

func (f *Fuzzy) Match(ctx context.Context, doc *Document, snap *taxonomy.Snapshot) Outcome {
	threshold := f.Threshold
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultFuzzyThreshold
	}
	minLen := max(f.MinLength, 1)

	// Distinct uncovered tokens.
	byKey := make(map[string]*fuzzyToken)
	var work []*fuzzyToken
	for _, i := range doc.Uncovered() {
		key := textnorm.Key(doc.Tokens[i].Text)
		n := utf8.RuneCountInString(key)
		if n < minLen {
			continue
		}
		ft, ok := byKey[key]
		if !ok {
			ft = &fuzzyToken{key: key, runes: n}
			byKey[key] = ft
			work = append(work, ft)
		}
		ft.idx = append(ft.idx, i)
	}
	sort.SliceStable(work, func(i, j int) bool {
		if work[i].runes != work[j].runes {
			return work[i].runes > work[j].runes
		}
		return work[i].key < work[j].key
	})
	if f.MaxTokens > 0 && len(work) > f.MaxTokens {
		work = work[:f.MaxTokens]
	}

	var out []Candidate
	for _, ft := range work {
		if err := ctx.Err(); err != nil {
			return Unavailable(NameFuzzy, err)
		}
		entry, score, ok := f.best(ft, snap, threshold)
		if !ok {
			continue
		}
		for _, i := range ft.idx {
			tok := doc.Tokens[i]
			out = append(out, Candidate{
				Original: tok.Raw,
				Entry:    entry,
				Start:    tok.Start,
				End:      tok.End,
				Score:    score / 100,
				Strategy: NameFuzzy,
			})
		}
	}
	SortBySpan(out)
	return Ok(NameFuzzy, out)
}

// best returns the highest scoring alias for the token. Ties prefer the
// shorter alias, then the lexically smaller one.
func (f *Fuzzy) best(ft *fuzzyToken, snap *taxonomy.Snapshot, threshold float64) (taxonomy.Entry, float64, bool) {
	// ratio >= t requires the other length m to satisfy
	// n*t/(200-t) <= m <= n*(200-t)/t.
	lo := int(float64(ft.runes) * threshold / (200 - threshold))
	hi := int(float64(ft.runes) * (200 - threshold) / threshold)

	var (
		bestEntry taxonomy.Entry
		bestKey   string
		bestScore float64
		found     bool
	)
	snap.KeysWithLength(lo, hi, func(key string, e taxonomy.Entry) {
		score := Similarity(ft.key, key)
		if score < threshold {
			return
		}
		if !found || score > bestScore ||
			(score == bestScore && better(key, bestKey)) {
			bestEntry, bestKey, bestScore, found = e, key, score, true
		}
	})
	return bestEntry, bestScore, found
}

func better(a, b string) bool {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

// Similarity returns the LCS ratio of a and b on a 0..100 scale.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la+lb == 0 {
		return 100
	}
	return 200 * float64(edlib.LCS(a, b)) / float64(la+lb)
}
