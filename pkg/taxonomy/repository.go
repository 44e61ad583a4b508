package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Repository is the query surface the extraction pipeline depends on.
type Repository interface {
	Lookup(term string) (Entry, bool)
	LevelOf(term string) int
	IsDigital(term string) bool
	AllLabels() []string
	Snapshot() *Snapshot
}

var (
	_ Repository = (*Snapshot)(nil)
	_ Repository = (*TieredRepository)(nil)
)

// Config configures a TieredRepository.
type Config struct {
	CacheMaxAge   time.Duration
	CacheDir      string // holds snapshot.json
	ReferenceDir  string // offline skills/collections files
	DomainDir     string // supplementary domain term files
	MinRecords    int    // integrity floor for every tier but minimal
	RemoteURL     string
	RemoteTimeout time.Duration

	// MinRatio rejects a remote or cached source smaller than this fraction
	// of the last good base size.
	MinRatio float64
	// RetryInterval is how long a snapshot from a fallback tier is served
	// before the sources are tried again.
	RetryInterval time.Duration
}

// Defaults applied by NewTieredRepository to unset Config fields.
const (
	DefaultCacheMaxAge   = 24 * time.Hour
	DefaultMinRatio      = 0.5
	DefaultRetryInterval = 5 * time.Minute
	DefaultRemoteTimeout = 10 * time.Second
)

// Attempt records one tier tried during the last refresh.
type Attempt struct {
	Tier    Tier
	Records int
	Skipped int
	Err     error
}

// Option configures optional TieredRepository collaborators.
type Option func(*TieredRepository)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *TieredRepository) { r.logger = l }
}

// WithFetcher replaces the HTTP remote source.
func WithFetcher(f Fetcher) Option {
	return func(r *TieredRepository) { r.fetcher = f }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *TieredRepository) { r.now = now }
}

type aliasPair struct{ term, canonical string }

// TieredRepository assembles snapshots from a chain of sources and swaps them
// in atomically. Readers never observe a partially built snapshot.
type TieredRepository struct {
	cfg     Config
	fetcher Fetcher
	logger  *slog.Logger
	now     func() time.Time

	current atomic.Pointer[Snapshot]
	group   singleflight.Group

	buildMu   sync.Mutex // serialises snapshot writers
	overlay   []aliasPair
	report    []Attempt
	lastGood  int          // base entries of the last snapshot from a real source
	checkedAt atomic.Int64 // unix nanos of the last rebuild
}

// NewTieredRepository creates a repository. No source is touched until the
// first Refresh or query.
func NewTieredRepository(cfg Config, opts ...Option) *TieredRepository {
	if cfg.CacheMaxAge <= 0 {
		cfg.CacheMaxAge = DefaultCacheMaxAge
	}
	if cfg.MinRatio <= 0 {
		cfg.MinRatio = DefaultMinRatio
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultRemoteTimeout
	}
	r := &TieredRepository{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil && cfg.RemoteURL != "" {
		r.fetcher = NewRemoteSource(cfg.RemoteURL, nil)
	}
	return r
}

func (r *TieredRepository) cachePath() string {
	if r.cfg.CacheDir == "" {
		return ""
	}
	return filepath.Join(r.cfg.CacheDir, "snapshot.json")
}

// Refresh returns a snapshot younger than CacheMaxAge, rebuilding it from the
// source tiers when needed. Snapshots from a fallback tier are kept for
// RetryInterval only, so a recovered remote is picked up soon. It never fails:
// the last tier is hardcoded.
func (r *TieredRepository) Refresh(ctx context.Context) *Snapshot {
	if s := r.fresh(); s != nil {
		return s
	}
	return r.refresh(ctx, false)
}

// ForceRefresh rebuilds the snapshot regardless of its age.
func (r *TieredRepository) ForceRefresh(ctx context.Context) *Snapshot {
	return r.refresh(ctx, true)
}

func (r *TieredRepository) fresh() *Snapshot {
	s := r.current.Load()
	if s == nil {
		return nil
	}
	now := r.now()
	switch s.Tier() {
	case TierRemote, TierCache:
		if now.Sub(s.BuiltAt()) < r.cfg.CacheMaxAge {
			return s
		}
	default:
		if now.Sub(time.Unix(0, r.checkedAt.Load())) < r.cfg.RetryInterval {
			return s
		}
	}
	return nil
}

func (r *TieredRepository) refresh(ctx context.Context, force bool) *Snapshot {
	key := "refresh"
	if force {
		key = "force"
	}
	v, _, _ := r.group.Do(key, func() (any, error) {
		if !force {
			if s := r.fresh(); s != nil {
				return s, nil
			}
		}
		return r.rebuild(ctx, force), nil
	})
	return v.(*Snapshot)
}

// Report returns the tier attempts of the last rebuild.
func (r *TieredRepository) Report() []Attempt {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()
	return append([]Attempt(nil), r.report...)
}

func (r *TieredRepository) rebuild(ctx context.Context, force bool) *Snapshot {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	var attempts []Attempt
	entries, tier, builtAt := r.loadBase(ctx, force, &attempts)

	b := NewBuilder(r.logger)
	for _, e := range entries {
		b.Add(e)
	}

	terms, err := LoadDomainTerms(r.cfg.DomainDir, r.logger)
	if err != nil {
		r.logger.Warn("domain terms unavailable", "dir", r.cfg.DomainDir, "err", err)
	}
	for _, t := range terms {
		b.AddDomainTerm(t)
	}
	r.applyOverlay(b)

	snap, err := b.Build(tier, builtAt)
	if err != nil {
		r.logger.Error("taxonomy build failed, using minimal set", "tier", tier, "err", err)
		snap = r.minimalSnapshot()
		tier = TierMinimal
	}

	r.report = attempts
	if tier != TierMinimal {
		r.lastGood = len(entries)
	}
	r.checkedAt.Store(r.now().UnixNano())
	r.current.Store(snap)
	r.logger.Info("taxonomy snapshot ready",
		"tier", tier, "entries", snap.Len(), "aliases", snap.AliasCount(),
		"domain_terms", len(terms), "conflicts", len(snap.Conflicts()))
	return snap
}

// loadBase walks the tiers and returns the first set of entries passing the
// integrity check, with the tier it came from and its build time.
func (r *TieredRepository) loadBase(ctx context.Context, force bool, attempts *[]Attempt) ([]Entry, Tier, time.Time) {
	now := r.now()
	cachePath := r.cachePath()

	// Disk cache, loaded once and reused for the stale tier.
	var (
		cached   []Entry
		cachedAt time.Time
		cacheErr error
	)
	expected := r.lastGood
	if cachePath != "" {
		cached, cachedAt, cacheErr = LoadEntries(cachePath)
		if cacheErr == nil {
			cacheErr = r.checkIntegrity(len(cached), expected)
		}
		if cacheErr == nil && len(cached) > expected {
			expected = len(cached)
		}
		if !force && cacheErr == nil && now.Sub(cachedAt) < r.cfg.CacheMaxAge {
			*attempts = append(*attempts, Attempt{Tier: TierCache, Records: len(cached)})
			return cached, TierCache, cachedAt
		}
	}

	if r.fetcher != nil {
		fctx, cancel := context.WithTimeout(ctx, r.cfg.RemoteTimeout)
		entries, skipped, err := r.fetcher.Fetch(fctx)
		cancel()
		if err == nil {
			err = r.checkIntegrity(len(entries), expected)
		}
		*attempts = append(*attempts, Attempt{Tier: TierRemote, Records: len(entries), Skipped: skipped, Err: err})
		if err == nil {
			if skipped > 0 {
				r.logger.Warn("malformed taxonomy records skipped", "tier", TierRemote, "skipped", skipped)
			}
			if cachePath != "" {
				if werr := SaveEntries(cachePath, TierRemote, now, entries); werr != nil {
					r.logger.Warn("could not write taxonomy cache", "path", cachePath, "err", werr)
				}
			}
			return entries, TierRemote, now
		}
		r.logger.Warn("taxonomy tier failed", "tier", TierRemote, "err", err)
	}

	if cachePath != "" {
		*attempts = append(*attempts, Attempt{Tier: TierStaleCache, Records: len(cached), Err: cacheErr})
		if cacheErr == nil {
			return cached, TierStaleCache, cachedAt
		}
		r.logger.Debug("taxonomy tier failed", "tier", TierStaleCache, "err", cacheErr)
	}

	if r.cfg.ReferenceDir != "" {
		entries, skipped, err := LoadReference(r.cfg.ReferenceDir)
		if err == nil {
			// Only the floor applies: any reference set beats the minimal one.
			err = r.checkIntegrity(len(entries), 0)
		}
		*attempts = append(*attempts, Attempt{Tier: TierFallback, Records: len(entries), Skipped: skipped, Err: err})
		if err == nil {
			gen := filepath.Join(r.cfg.ReferenceDir, ReferenceGenerated)
			if werr := SaveEntries(gen, TierFallback, now, entries); werr != nil {
				r.logger.Warn("could not write generated fallback", "path", gen, "err", werr)
			}
			return entries, TierFallback, now
		}
		r.logger.Warn("taxonomy tier failed", "tier", TierFallback, "err", err)
	}

	entries := MinimalEntries()
	*attempts = append(*attempts, Attempt{Tier: TierMinimal, Records: len(entries)})
	return entries, TierMinimal, now
}

// checkIntegrity rejects n records when below the MinRecords floor or below
// MinRatio of expected, the size of the last good source (0 when unknown).
func (r *TieredRepository) checkIntegrity(n, expected int) error {
	if n == 0 || n < r.cfg.MinRecords {
		return fmt.Errorf("%w: %d records, want at least %d", ErrIntegrity, n, max(r.cfg.MinRecords, 1))
	}
	if want := int(math.Ceil(r.cfg.MinRatio * float64(expected))); n < want {
		return fmt.Errorf("%w: %d records, last good source had %d", ErrIntegrity, n, expected)
	}
	return nil
}

func (r *TieredRepository) minimalSnapshot() *Snapshot {
	b := NewBuilder(r.logger)
	for _, e := range MinimalEntries() {
		b.Add(e)
	}
	s, err := b.Build(TierMinimal, r.now())
	if err != nil {
		// The minimal vocabulary is static; failing to compile it is a bug.
		panic(err)
	}
	return s
}

func (r *TieredRepository) applyOverlay(b *Builder) {
	for _, p := range r.overlay {
		if err := b.AddAlias(p.term, p.canonical); err != nil {
			r.logger.Warn("dropping alias overlay", "term", p.term, "canonical", p.canonical, "err", err)
		}
	}
}

// AddAlias maps term to canonical in the current snapshot and in every
// snapshot rebuilt afterwards.
func (r *TieredRepository) AddAlias(ctx context.Context, term, canonical string) error {
	base := r.Snapshot()

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	if cur := r.current.Load(); cur != nil {
		base = cur
	}
	b := BuilderFrom(base, r.logger)
	if err := b.AddAlias(term, canonical); err != nil {
		return err
	}
	snap, err := b.Build(base.Tier(), base.BuiltAt())
	if err != nil {
		return fmt.Errorf("rebuild snapshot with alias %q: %w", term, err)
	}
	r.overlay = append(r.overlay, aliasPair{term: term, canonical: canonical})
	r.current.Store(snap)
	r.logger.Info("alias added", "term", term, "canonical", canonical)
	return nil
}

// Snapshot returns the current snapshot, loading one on first use.
func (r *TieredRepository) Snapshot() *Snapshot {
	if s := r.current.Load(); s != nil {
		return s
	}
	return r.Refresh(context.Background())
}

func (r *TieredRepository) Lookup(term string) (Entry, bool) { return r.Snapshot().Lookup(term) }
func (r *TieredRepository) LevelOf(term string) int          { return r.Snapshot().LevelOf(term) }
func (r *TieredRepository) IsDigital(term string) bool       { return r.Snapshot().IsDigital(term) }
func (r *TieredRepository) AllLabels() []string              { return r.Snapshot().AllLabels() }
