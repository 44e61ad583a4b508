// Package discovery finds noun-like terms in job text that the taxonomy does
// not know yet, for human review through the discovery ledger.
package discovery

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kittclouds/skillscan/pkg/matcher"
	"github.com/kittclouds/skillscan/pkg/taxonomy"
	"github.com/kittclouds/skillscan/pkg/textnorm"
)

// Defaults.
const (
	DefaultMinLength     = 3
	DefaultConfidence    = 0.7
	DefaultContextRadius = 40
)

// Candidate is an unknown term seen in one document.
type Candidate struct {
	Term       string
	Role       string
	Context    string
	Start      int
	End        int
	Level      int
	Confidence float64
}

// Config tunes the detector.
type Config struct {
	MinLength     int     // runes
	Confidence    float64 // assigned to every candidate
	ContextRadius int     // bytes of context on each side
}

// Detector applies the discovery filters in order: part of speech, minimum
// length, blacklist, and resolvability through the taxonomy.
type Detector struct {
	cfg       Config
	tagger    *Tagger
	blacklist *Blacklist
}

// NewDetector creates a detector. A nil blacklist uses the built-in one.
func NewDetector(cfg Config, blacklist *Blacklist) *Detector {
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.Confidence <= 0 || cfg.Confidence > 1 {
		cfg.Confidence = DefaultConfidence
	}
	if cfg.ContextRadius <= 0 {
		cfg.ContextRadius = DefaultContextRadius
	}
	if blacklist == nil {
		blacklist = NewBlacklist()
	}
	return &Detector{cfg: cfg, tagger: NewTagger(), blacklist: blacklist}
}

// Blacklist returns the detector's blacklist.
func (d *Detector) Blacklist() *Blacklist { return d.blacklist }

// Detect returns one candidate per distinct unknown term among the tokens of
// doc no match pass claimed, in order of first appearance.
func (d *Detector) Detect(doc *matcher.Document, snap *taxonomy.Snapshot, role string) []Candidate {
	if len(doc.Tokens) == 0 {
		return nil
	}

	words := make([]Word, len(doc.Tokens))
	for i, tok := range doc.Tokens {
		words[i] = Word{Text: tok.Raw, SentenceStart: sentenceStart(doc.Text, tok.Start)}
	}
	tags := d.tagger.Tag(words)

	seen := make(map[string]bool)
	var out []Candidate
	for i, tok := range doc.Tokens {
		if !tags[i].IsNominal() || doc.Covered(tok.Start, tok.End) {
			continue
		}
		term := tok.Raw
		if utf8.RuneCountInString(term) < d.cfg.MinLength || !hasLetter(term) {
			continue
		}
		key := textnorm.Key(term)
		if seen[key] {
			continue
		}
		seen[key] = true

		if d.blacklist.Contains(term) || snap.Resolvable(term) {
			continue
		}
		out = append(out, Candidate{
			Term:       term,
			Role:       role,
			Context:    strings.TrimSpace(doc.Snippet(tok.Start, tok.End, d.cfg.ContextRadius)),
			Start:      tok.Start,
			End:        tok.End,
			Level:      taxonomy.LevelDiscovery,
			Confidence: d.cfg.Confidence,
		})
	}
	return out
}

// sentenceStart reports whether the token at offset begins a sentence, a
// line or a list item.
func sentenceStart(text string, offset int) bool {
	i := offset
	for i > 0 {
		r, w := utf8.DecodeLastRuneInString(text[:i])
		switch {
		case r == '\n' || r == '.' || r == '!' || r == '?' || r == ':' || r == '•' || r == '*':
			return true
		case unicode.IsSpace(r) || r == '-' || r == '–' || r == '(' || r == '"' || r == '„':
			i -= w
		default:
			return false
		}
	}
	return true
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
