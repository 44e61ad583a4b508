package taxonomy

import (
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"

	"github.com/kittclouds/skillscan/pkg/textnorm"
)

// Tier names the source a snapshot was assembled from.
type Tier string

const (
	TierMemory     Tier = "memory"
	TierCache      Tier = "cache"
	TierRemote     Tier = "remote"
	TierStaleCache Tier = "stale-cache"
	TierFallback   Tier = "fallback"
	TierMinimal    Tier = "minimal"
	TierStatic     Tier = "static"
)

// DomainTerm is one term from a supplementary domain file.
type DomainTerm struct {
	Term   string `json:"term"`
	Level  int    `json:"level"`
	Domain string `json:"domain"`
}

// LevelConflict records a label claimed by domain sources at different levels.
type LevelConflict struct {
	Term    string
	Levels  []int
	Domains []string
}

// Hit is one Aho-Corasick hit in canonical text.
type Hit struct {
	Start int // byte offset in canonical text
	End   int // exclusive
	Key   string
	Entry Entry
}

var snapshotVersion atomic.Uint64

// Snapshot is an immutable, fully indexed taxonomy. It is never mutated after
// Build; refreshes and alias additions produce a new Snapshot.
type Snapshot struct {
	entries     []Entry
	domainTerms []DomainTerm

	alias   map[string]int // Key(surface) -> entry index
	loose   map[string]int // Loose(surface) -> entry index
	compact map[string]int // Compact(surface) -> entry index

	keysByLen map[int][]string // rune length -> alias keys, sorted

	domainLevels map[string]int // Key(term) -> highest claimed level
	entryLevels  []int          // entry index -> highest level claimed for any surface
	conflicts    []LevelConflict

	ac       *ahocorasick.Automaton
	patterns []string

	tier    Tier
	builtAt time.Time
	version uint64
}

// ============================================================================
// Builder
// ============================================================================

// Builder accumulates entries, domain terms and alias overlays and compiles
// them into a Snapshot.
type Builder struct {
	entries     []Entry
	byLabel     map[string]int
	domainTerms []DomainTerm
	logger      *slog.Logger
	skipped     int
}

// NewBuilder creates an empty builder.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		byLabel: make(map[string]int),
		logger:  logger,
	}
}

// BuilderFrom seeds a builder with the entries and domain terms of s.
func BuilderFrom(s *Snapshot, logger *slog.Logger) *Builder {
	b := NewBuilder(logger)
	for _, e := range s.entries {
		e.AltLabels = append([]string(nil), e.AltLabels...)
		b.Add(e)
	}
	b.domainTerms = append(b.domainTerms, s.domainTerms...)
	return b
}

// Add appends an entry. Entries without a label are skipped; a duplicate
// preferred label keeps the first-loaded entry.
func (b *Builder) Add(e Entry) bool {
	e = normalizeEntry(e)
	key := textnorm.Key(e.PreferredLabel)
	if key == "" {
		b.skipped++
		return false
	}
	if _, dup := b.byLabel[key]; dup {
		return false
	}
	b.byLabel[key] = len(b.entries)
	b.entries = append(b.entries, e)
	return true
}

// AddDomainTerm registers a supplementary domain term at the given level.
func (b *Builder) AddDomainTerm(t DomainTerm) {
	if textnorm.Key(t.Term) == "" {
		return
	}
	b.domainTerms = append(b.domainTerms, t)
}

// AddAlias attaches term to the entry whose label or alias is canonical. An
// unknown canonical label becomes a new standard-level entry.
func (b *Builder) AddAlias(term, canonical string) error {
	termKey, canonKey := textnorm.Key(term), textnorm.Key(canonical)
	if termKey == "" || canonKey == "" {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidAlias, term, canonical)
	}

	idx, ok := b.byLabel[canonKey]
	if !ok {
		idx, ok = b.findAlias(canonKey)
	}
	if !ok {
		b.Add(Entry{
			PreferredLabel: canonical,
			AltLabels:      []string{term},
			URI:            SyntheticURI("discovery", canonical),
			Level:          LevelStandard,
			SourceDomain:   "discovery",
		})
		return nil
	}

	e := &b.entries[idx]
	for _, s := range e.Surfaces() {
		if textnorm.Key(s) == termKey {
			return nil
		}
	}
	e.AltLabels = append(e.AltLabels, term)
	return nil
}

func (b *Builder) findAlias(key string) (int, bool) {
	for i, e := range b.entries {
		for _, a := range e.AltLabels {
			if textnorm.Key(a) == key {
				return i, true
			}
		}
	}
	return 0, false
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int { return len(b.entries) }

// Build compiles the snapshot: alias, loose and compact maps, the
// Aho-Corasick automaton over alias keys and the domain level table.
func (b *Builder) Build(tier Tier, builtAt time.Time) (*Snapshot, error) {
	s := &Snapshot{
		domainTerms:  append([]DomainTerm(nil), b.domainTerms...),
		alias:        make(map[string]int),
		loose:        make(map[string]int),
		compact:      make(map[string]int),
		keysByLen:    make(map[int][]string),
		domainLevels: make(map[string]int),
		tier:         tier,
		builtAt:      builtAt,
		version:      snapshotVersion.Add(1),
	}

	entries := append([]Entry(nil), b.entries...)
	known := make(map[string]bool, len(b.byLabel))
	for _, e := range b.entries {
		for _, surface := range e.Surfaces() {
			known[textnorm.Key(surface)] = true
		}
	}

	// Domain terms: record claimed levels, add entries for terms no label or
	// alias covers yet.
	for _, t := range b.domainTerms {
		key := textnorm.Key(t.Term)
		if t.Level > s.domainLevels[key] {
			s.domainLevels[key] = t.Level
		}
		if known[key] {
			continue
		}
		known[key] = true
		entries = append(entries, normalizeEntry(Entry{
			PreferredLabel: t.Term,
			URI:            SyntheticURI(t.Domain, t.Term),
			Level:          t.Level,
			SourceDomain:   t.Domain,
		}))
	}

	s.entries = entries

	// Preferred labels are indexed before any alternate label so an alias can
	// never shadow another entry's preferred label.
	for i, e := range entries {
		s.index(e.PreferredLabel, i)
	}
	for i, e := range entries {
		for _, a := range e.AltLabels {
			s.index(a, i)
		}
	}

	s.entryLevels = make([]int, len(entries))
	s.conflicts = b.resolveClaims(s)
	for l := range s.keysByLen {
		sort.Strings(s.keysByLen[l])
	}

	if len(s.patterns) > 0 {
		// Standard match semantics: overlapping search reports every hit and
		// the alias pass resolves overlaps longest-first itself.
		automaton, err := ahocorasick.NewBuilder().
			AddStrings(s.patterns).
			SetPrefilter(true).
			Build()
		if err != nil {
			return nil, fmt.Errorf("build alias automaton: %w", err)
		}
		s.ac = automaton
	}

	if b.skipped > 0 {
		b.logger.Debug("taxonomy entries skipped", "skipped", b.skipped)
	}
	return s, nil
}

// resolveClaims credits every domain claim to the entry its term resolves
// to, so all surfaces of one entry share the highest claim. Entries claimed
// at more than one level are returned as conflicts and logged.
func (b *Builder) resolveClaims(s *Snapshot) []LevelConflict {
	claims := make(map[int]map[int]string)
	var order []int
	for _, t := range b.domainTerms {
		idx, ok := s.alias[textnorm.Key(t.Term)]
		if !ok {
			continue
		}
		if claims[idx] == nil {
			claims[idx] = make(map[int]string)
			order = append(order, idx)
		}
		if _, seen := claims[idx][t.Level]; !seen {
			claims[idx][t.Level] = t.Domain
		}
		if t.Level > s.entryLevels[idx] {
			s.entryLevels[idx] = t.Level
		}
	}

	var out []LevelConflict
	for _, idx := range order {
		if len(claims[idx]) < 2 {
			continue
		}
		c := LevelConflict{Term: textnorm.Key(s.entries[idx].PreferredLabel)}
		for lvl := range claims[idx] {
			c.Levels = append(c.Levels, lvl)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(c.Levels)))
		for _, lvl := range c.Levels {
			c.Domains = append(c.Domains, claims[idx][lvl])
		}
		out = append(out, c)
		b.logger.Warn("taxonomy level conflict",
			"term", c.Term, "levels", c.Levels, "domains", c.Domains, "resolved", c.Levels[0])
	}
	return out
}

func (s *Snapshot) index(surface string, idx int) {
	key := textnorm.Key(surface)
	if key == "" {
		return
	}
	if _, taken := s.alias[key]; !taken {
		s.alias[key] = idx
		s.patterns = append(s.patterns, key)
		n := utf8.RuneCountInString(key)
		s.keysByLen[n] = append(s.keysByLen[n], key)
	}
	// Variant keys shorter than two runes ("C++" -> "c") would match stray
	// letters, so they are not indexed.
	if k := textnorm.Loose(surface); utf8.RuneCountInString(k) >= 2 {
		if _, taken := s.loose[k]; !taken {
			s.loose[k] = idx
		}
	}
	if k := textnorm.Compact(surface); utf8.RuneCountInString(k) >= 2 {
		if _, taken := s.compact[k]; !taken {
			s.compact[k] = idx
		}
	}
}

// ============================================================================
// Queries
// ============================================================================

// Lookup resolves a term case-insensitively through the alias index.
func (s *Snapshot) Lookup(term string) (Entry, bool) {
	return s.LookupKey(textnorm.Key(term))
}

// LookupKey resolves an already canonical alias key.
func (s *Snapshot) LookupKey(key string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	idx, ok := s.alias[key]
	if !ok {
		return Entry{}, false
	}
	return s.entries[idx], true
}

// LookupLoose resolves a Loose-normalised key.
func (s *Snapshot) LookupLoose(key string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	idx, ok := s.loose[key]
	if !ok {
		return Entry{}, false
	}
	return s.entries[idx], true
}

// LookupCompact resolves a whitespace-free key.
func (s *Snapshot) LookupCompact(key string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	idx, ok := s.compact[key]
	if !ok {
		return Entry{}, false
	}
	return s.entries[idx], true
}

// Resolvable reports whether term resolves through the canonical, loose or
// compact key.
func (s *Snapshot) Resolvable(term string) bool {
	if _, ok := s.Lookup(term); ok {
		return true
	}
	if _, ok := s.LookupLoose(textnorm.Loose(term)); ok {
		return true
	}
	_, ok := s.LookupCompact(textnorm.Compact(term))
	return ok
}

// LevelOf returns the highest level claimed for term: its domain level, the
// highest domain claim on any surface of the entry it resolves to, or that
// entry's own level. Unknown terms are discovery level.
func (s *Snapshot) LevelOf(term string) int {
	if s == nil {
		return LevelDiscovery
	}
	key := textnorm.Key(term)
	level := s.domainLevels[key]
	if idx, ok := s.alias[key]; ok {
		if l := s.entryLevels[idx]; l > level {
			level = l
		}
		if e := s.entries[idx]; e.Level > level {
			level = e.Level
		}
	}
	if level < LevelDiscovery {
		return LevelDiscovery
	}
	return level
}

// IsDigital reports whether term resolves to an entry flagged digital.
func (s *Snapshot) IsDigital(term string) bool {
	e, ok := s.Lookup(term)
	return ok && e.IsDigital
}

// AllLabels returns every preferred label, sorted.
func (s *Snapshot) AllLabels() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.PreferredLabel
	}
	sort.Strings(out)
	return out
}

// Snapshot returns s; a Snapshot is its own static Repository.
func (s *Snapshot) Snapshot() *Snapshot { return s }

// Scan runs the alias automaton over canonical text and returns every
// overlapping hit. Boundary checks are left to the caller.
func (s *Snapshot) Scan(canon string) []Hit {
	if s == nil || s.ac == nil || canon == "" {
		return nil
	}
	matches := s.ac.FindAllOverlapping([]byte(canon))
	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		key := s.patterns[m.PatternID]
		hits = append(hits, Hit{
			Start: m.Start,
			End:   m.End,
			Key:   key,
			Entry: s.entries[s.alias[key]],
		})
	}
	return hits
}

// KeysWithLength calls fn for every alias key whose rune length lies in
// [minLen, maxLen], in ascending length then lexical order.
func (s *Snapshot) KeysWithLength(minLen, maxLen int, fn func(key string, e Entry)) {
	if s == nil {
		return
	}
	if minLen < 1 {
		minLen = 1
	}
	for l := minLen; l <= maxLen; l++ {
		for _, key := range s.keysByLen[l] {
			fn(key, s.entries[s.alias[key]])
		}
	}
}

// Entries returns a copy of every entry in load order.
func (s *Snapshot) Entries() []Entry {
	if s == nil {
		return nil
	}
	return append([]Entry(nil), s.entries...)
}

// DomainTerms returns the supplementary domain terms merged into s.
func (s *Snapshot) DomainTerms() []DomainTerm {
	return append([]DomainTerm(nil), s.domainTerms...)
}

// Conflicts returns labels claimed at more than one domain level.
func (s *Snapshot) Conflicts() []LevelConflict {
	return append([]LevelConflict(nil), s.conflicts...)
}

func (s *Snapshot) Len() int           { return len(s.entries) }
func (s *Snapshot) AliasCount() int    { return len(s.alias) }
func (s *Snapshot) Tier() Tier         { return s.tier }
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Version increases with every snapshot built in the process.
func (s *Snapshot) Version() uint64 { return s.version }
