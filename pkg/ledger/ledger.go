// Package ledger persists discovery candidates across runs and applies the
// human review decisions: approve promotes a term into the taxonomy, ignore
// suppresses it permanently.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kittclouds/skillscan/pkg/textnorm"
)

var (
	// ErrCorruptState indicates persisted ledger state could not be parsed.
	// Backends log it and continue from empty state.
	ErrCorruptState = errors.New("corrupt ledger state")

	// ErrInvalidTerm indicates an empty term or canonical label.
	ErrInvalidTerm = errors.New("invalid ledger term")
)

// Candidate is a pending discovery aggregated over runs.
type Candidate struct {
	Term      string    `json:"term"`
	Role      string    `json:"role"`
	Count     int       `json:"count"`
	Context   string    `json:"context,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Key identifies a candidate: canonical term and role.
func (c Candidate) Key() string { return Key(c.Term, c.Role) }

// Key builds the term|role ledger key.
func Key(term, role string) string {
	return TermKey(term) + "|" + strings.TrimSpace(role)
}

// TermKey is the case-insensitive, whitespace-normalised form of a term.
func TermKey(term string) string { return textnorm.Key(term) }

// Approval is a reviewed term promoted into the taxonomy.
type Approval struct {
	Term       string    `json:"term"`
	Canonical  string    `json:"canonical"`
	ApprovedAt time.Time `json:"approved_at"`
}

// Backend stores ledger state. Merge must add counts, keep the earliest
// FirstSeen and the latest LastSeen.
type Backend interface {
	Merge(ctx context.Context, candidates []Candidate) error
	Pending(ctx context.Context) ([]Candidate, error)
	Ignored(ctx context.Context) (map[string]bool, error) // keyed by TermKey
	AddIgnored(ctx context.Context, term string) error    // also drops pending rows
	Approve(ctx context.Context, a Approval) error        // also drops pending rows
	Approved(ctx context.Context) ([]Approval, error)
	Close() error
}

// KeyLocker is implemented by backends whose rows can be written
// independently, so writes lock per term|role instead of the whole ledger.
type KeyLocker interface {
	LockPerKey() bool
}

// AliasSink receives approved aliases.
type AliasSink interface {
	AddAlias(ctx context.Context, term, canonical string) error
}

const documentLock = "ledger"

// Ledger serialises writes to a Backend and forwards approvals to an
// AliasSink.
type Ledger struct {
	backend Backend
	locker  Locker
	sink    AliasSink
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLocker replaces the in-process locker, e.g. with a RedisLocker when
// several processes share one ledger.
func WithLocker(lk Locker) Option {
	return func(l *Ledger) { l.locker = lk }
}

// WithAliasSink sets where approvals are applied.
func WithAliasSink(s AliasSink) Option {
	return func(l *Ledger) { l.sink = s }
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Ledger) { l.logger = lg }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger over backend with an in-process locker.
func New(backend Backend, opts ...Option) *Ledger {
	l := &Ledger{
		backend: backend,
		locker:  NewLocalLocker(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) perKey() bool {
	k, ok := l.backend.(KeyLocker)
	return ok && k.LockPerKey()
}

func (l *Ledger) withLock(ctx context.Context, name string, fn func() error) error {
	if !l.perKey() {
		name = documentLock
	}
	unlock, err := l.locker.Lock(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// Record merges candidates into the ledger. Terms on the ignore list or
// already approved are skipped; repeated sightings add to the count. The
// lists are read under the same lock Ignore and Approve take, so a decision
// made concurrently is never undone by a late merge.
func (l *Ledger) Record(ctx context.Context, candidates []Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	now := l.now().UTC()
	byKey := make(map[string]Candidate)
	for _, c := range candidates {
		if TermKey(c.Term) == "" {
			continue
		}
		c.Term = strings.TrimSpace(c.Term)
		c.Role = strings.TrimSpace(c.Role)
		if c.Count <= 0 {
			c.Count = 1
		}
		if c.FirstSeen.IsZero() {
			c.FirstSeen = now
		}
		if c.LastSeen.IsZero() {
			c.LastSeen = now
		}
		if prev, ok := byKey[c.Key()]; ok {
			c = MergeCandidate(prev, c)
		}
		byKey[c.Key()] = c
	}
	if len(byKey) == 0 {
		return nil
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if !l.perKey() {
		batch := make([]Candidate, 0, len(keys))
		for _, k := range keys {
			batch = append(batch, byKey[k])
		}
		return l.withLock(ctx, documentLock, func() error {
			return l.mergeDecided(ctx, batch)
		})
	}

	// Rows of one term share the term lock; keys sort by term first.
	for start := 0; start < len(keys); {
		tk := TermKey(byKey[keys[start]].Term)
		end := start + 1
		for end < len(keys) && TermKey(byKey[keys[end]].Term) == tk {
			end++
		}
		batch := make([]Candidate, 0, end-start)
		for _, k := range keys[start:end] {
			batch = append(batch, byKey[k])
		}
		if err := l.withLock(ctx, termLock(tk), func() error {
			return l.mergeDecided(ctx, batch)
		}); err != nil {
			return err
		}
		start = end
	}
	return nil
}

// mergeDecided merges the candidates whose term has no review decision yet.
// Callers hold the lock.
func (l *Ledger) mergeDecided(ctx context.Context, batch []Candidate) error {
	ignored, approved, err := l.decided(ctx)
	if err != nil {
		return err
	}
	open := batch[:0]
	for _, c := range batch {
		tk := TermKey(c.Term)
		if ignored[tk] || approved[tk] {
			continue
		}
		open = append(open, c)
	}
	if len(open) == 0 {
		return nil
	}
	return l.backend.Merge(ctx, open)
}

func (l *Ledger) decided(ctx context.Context) (ignored, approved map[string]bool, err error) {
	ignored, err = l.backend.Ignored(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read ignore list: %w", err)
	}
	approved, err = l.approvedKeys(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ignored, approved, nil
}

func termLock(termKey string) string { return "term:" + termKey }

func (l *Ledger) approvedKeys(ctx context.Context) (map[string]bool, error) {
	approvals, err := l.backend.Approved(ctx)
	if err != nil {
		return nil, fmt.Errorf("read approvals: %w", err)
	}
	out := make(map[string]bool, len(approvals))
	for _, a := range approvals {
		out[TermKey(a.Term)] = true
	}
	return out, nil
}

// Approve promotes term to an alias of canonical. The approval is persisted
// first, then applied to the alias sink, and the term leaves the pending list.
func (l *Ledger) Approve(ctx context.Context, term, canonical string) error {
	term, canonical = strings.TrimSpace(term), strings.TrimSpace(canonical)
	if TermKey(term) == "" || TermKey(canonical) == "" {
		return fmt.Errorf("%w: approve %q as %q", ErrInvalidTerm, term, canonical)
	}

	a := Approval{Term: term, Canonical: canonical, ApprovedAt: l.now().UTC()}
	if err := l.withLock(ctx, termLock(TermKey(term)), func() error {
		return l.backend.Approve(ctx, a)
	}); err != nil {
		return fmt.Errorf("persist approval: %w", err)
	}

	if l.sink != nil {
		if err := l.sink.AddAlias(ctx, term, canonical); err != nil {
			return fmt.Errorf("apply alias %q: %w", term, err)
		}
	}
	l.logger.Info("discovery approved", "term", term, "canonical", canonical)
	return nil
}

// Ignore adds term to the permanent ignore list and drops its pending rows.
func (l *Ledger) Ignore(ctx context.Context, term string) error {
	term = strings.TrimSpace(term)
	if TermKey(term) == "" {
		return fmt.Errorf("%w: ignore %q", ErrInvalidTerm, term)
	}
	if err := l.withLock(ctx, termLock(TermKey(term)), func() error {
		return l.backend.AddIgnored(ctx, term)
	}); err != nil {
		return fmt.Errorf("persist ignore: %w", err)
	}
	l.logger.Info("discovery ignored", "term", term)
	return nil
}

// Pending returns pending candidates, most frequent first. Terms that were
// put on the ignore list or approved by hand since their last sighting are
// left out.
func (l *Ledger) Pending(ctx context.Context) ([]Candidate, error) {
	rows, err := l.backend.Pending(ctx)
	if err != nil {
		return nil, err
	}
	ignored, approved, err := l.decided(ctx)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, c := range rows {
		tk := TermKey(c.Term)
		if ignored[tk] || approved[tk] {
			continue
		}
		out = append(out, c)
	}
	SortCandidates(out)
	return out, nil
}

// Approved returns every approval in approval order.
func (l *Ledger) Approved(ctx context.Context) ([]Approval, error) {
	return l.backend.Approved(ctx)
}

// Replay re-applies persisted approvals to the alias sink, so approvals
// survive process restarts.
func (l *Ledger) Replay(ctx context.Context) (int, error) {
	if l.sink == nil {
		return 0, nil
	}
	approvals, err := l.backend.Approved(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range approvals {
		if err := l.sink.AddAlias(ctx, a.Term, a.Canonical); err != nil {
			l.logger.Warn("could not replay approval", "term", a.Term, "canonical", a.Canonical, "err", err)
			continue
		}
		n++
	}
	return n, nil
}

// Close closes the backend.
func (l *Ledger) Close() error { return l.backend.Close() }

// SortCandidates orders by count descending, then term and role.
func SortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Count != cs[j].Count {
			return cs[i].Count > cs[j].Count
		}
		if cs[i].Term != cs[j].Term {
			return cs[i].Term < cs[j].Term
		}
		return cs[i].Role < cs[j].Role
	})
}

// MergeCandidate combines two sightings of the same key: counts add up, the
// earliest first sighting and the latest last sighting are kept.
func MergeCandidate(old, c Candidate) Candidate {
	out := old
	out.Count = old.Count + c.Count
	if !c.FirstSeen.IsZero() && (out.FirstSeen.IsZero() || c.FirstSeen.Before(out.FirstSeen)) {
		out.FirstSeen = c.FirstSeen
	}
	if c.LastSeen.After(out.LastSeen) {
		out.LastSeen = c.LastSeen
	}
	if out.Context == "" {
		out.Context = c.Context
	}
	return out
}
