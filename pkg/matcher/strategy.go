// Package matcher implements the match passes the extraction pipeline runs in
// priority order: alias, fuzzy, n-gram and semantic.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kittclouds/skillscan/pkg/pool"
	"github.com/kittclouds/skillscan/pkg/taxonomy"
	"github.com/kittclouds/skillscan/pkg/textnorm"
)

// Name identifies the pass that produced a match.
type Name string

const (
	NameAlias     Name = "alias"
	NameFuzzy     Name = "fuzzy"
	NameNGram     Name = "ngram"
	NameSemantic  Name = "semantic"
	NameDiscovery Name = "discovery"
)

// ErrStrategyUnavailable indicates an optional pass could not run.
var ErrStrategyUnavailable = errors.New("match strategy unavailable")

// Candidate is one match proposed by a pass. Start and End are byte offsets
// in the original text; passes without a text span (semantic) use -1.
type Candidate struct {
	Original string
	Entry    taxonomy.Entry
	Start    int
	End      int
	Score    float64 // confidence in [0,1]
	Strategy Name
}

// HasSpan reports whether the candidate is anchored in the text.
func (c Candidate) HasSpan() bool { return c.Start >= 0 && c.End > c.Start }

// Outcome is the result of one pass: either a list of candidates or the
// reason the pass did not run.
type Outcome struct {
	Strategy   Name
	Candidates []Candidate
	Err        error
}

// Ok wraps the candidates of a pass that ran.
func Ok(name Name, candidates []Candidate) Outcome {
	return Outcome{Strategy: name, Candidates: candidates}
}

// Unavailable reports a pass that could not run.
func Unavailable(name Name, reason error) Outcome {
	if !errors.Is(reason, ErrStrategyUnavailable) {
		reason = fmt.Errorf("%w: %v", ErrStrategyUnavailable, reason)
	}
	return Outcome{Strategy: name, Err: reason}
}

// Available reports whether the pass ran.
func (o Outcome) Available() bool { return o.Err == nil }

// Strategy is one match pass over a document.
type Strategy interface {
	Name() Name
	Match(ctx context.Context, doc *Document, snap *taxonomy.Snapshot) Outcome
}

// ============================================================================
// Document
// ============================================================================

// Document is the per-call working state shared by the passes: the text in
// original and canonical form, its tokens and the spans already matched.
type Document struct {
	Text   string
	Canon  string
	Tokens []textnorm.Tok

	mapping []int
	covered []span
	toks    *[]textnorm.Tok
}

type span struct{ start, end int }

// NewDocument tokenizes text. Call Release when done.
func NewDocument(text string) *Document {
	toks := pool.GetToks()
	*toks = textnorm.AppendTokens(*toks, text)
	return &Document{
		Text:    text,
		Canon:   textnorm.CanonicalizeForMatch(text),
		Tokens:  *toks,
		mapping: textnorm.BuildOffsetMap(text),
		toks:    toks,
	}
}

// Release returns the token buffer to the pool. The document must not be used
// afterwards.
func (d *Document) Release() {
	if d.toks != nil {
		*d.toks = d.Tokens
		pool.PutToks(d.toks)
		d.toks = nil
		d.Tokens = nil
	}
}

// OriginalSpan maps a canonical byte range onto the original text.
func (d *Document) OriginalSpan(canonStart, canonEnd int) (int, int) {
	return textnorm.MapOffset(canonStart, d.mapping, len(d.Text)),
		textnorm.MapEnd(canonEnd, d.mapping, d.Text)
}

// Cover marks [start, end) as matched.
func (d *Document) Cover(start, end int) {
	if start < 0 || end <= start {
		return
	}
	d.covered = append(d.covered, span{start, end})
}

// Covered reports whether [start, end) overlaps an already matched span.
func (d *Document) Covered(start, end int) bool {
	for _, s := range d.covered {
		if start < s.end && s.start < end {
			return true
		}
	}
	return false
}

// Uncovered returns the indexes of tokens not yet matched.
func (d *Document) Uncovered() []int {
	out := make([]int, 0, len(d.Tokens))
	for i, t := range d.Tokens {
		if !d.Covered(t.Start, t.End) {
			out = append(out, i)
		}
	}
	return out
}

// Snippet returns the text around [start, end), radius bytes on each side,
// widened to rune boundaries.
func (d *Document) Snippet(start, end, radius int) string {
	from, to := start-radius, end+radius
	if from < 0 {
		from = 0
	}
	if to > len(d.Text) {
		to = len(d.Text)
	}
	for from > 0 && !runeStart(d.Text[from]) {
		from--
	}
	for to < len(d.Text) && !runeStart(d.Text[to]) {
		to++
	}
	return d.Text[from:to]
}

func runeStart(b byte) bool { return b&0xC0 != 0x80 }

// SortBySpan orders anchored candidates by offset, longer first on ties.
func SortBySpan(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Start != cs[j].Start {
			return cs[i].Start < cs[j].Start
		}
		return cs[i].End > cs[j].End
	})
}
