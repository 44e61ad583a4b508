package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/kittclouds/skillscan/pkg/embedding"
	"github.com/kittclouds/skillscan/pkg/taxonomy"
)

// Semantic defaults.
const (
	DefaultSemanticTopK      = 5
	DefaultSemanticThreshold = 0.6
	DefaultMaxSemanticLabels = 2000
	DefaultMaxSemanticChars  = 8000
	semanticEmbedBatchSize   = 256
)

// SemanticConfig bounds the semantic pass.
type SemanticConfig struct {
	TopK          int
	Threshold     float64 // cosine
	MaxCandidates int     // labels embedded per snapshot
	MaxChars      int     // document prefix embedded
}

// Semantic embeds the document and a bounded pool of taxonomy labels and
// keeps the top-k labels above the cosine threshold. The label index is built
// lazily once per snapshot version.
type Semantic struct {
	cfg      SemanticConfig
	embedder embedding.Embedder
	newIndex IndexFactory
	logger   *slog.Logger

	mu      sync.Mutex
	ready   bool
	initErr error
	version uint64
	index   embedding.Index
}

// SemanticOption configures a Semantic pass.
type SemanticOption func(*Semantic)

// IndexFactory opens the label index for one label pool embedded with model.
type IndexFactory func(ctx context.Context, model string, labels []string) (embedding.Index, error)

// WithIndexFactory replaces the in-memory label index.
func WithIndexFactory(f IndexFactory) SemanticOption {
	return func(s *Semantic) { s.newIndex = f }
}

// WithSemanticLogger sets the logger.
func WithSemanticLogger(l *slog.Logger) SemanticOption {
	return func(s *Semantic) { s.logger = l }
}

// NewSemantic creates the pass. A nil embedder yields a pass that always
// reports itself unavailable.
func NewSemantic(e embedding.Embedder, cfg SemanticConfig, opts ...SemanticOption) *Semantic {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultSemanticTopK
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultSemanticThreshold
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxSemanticLabels
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxSemanticChars
	}
	s := &Semantic{
		cfg:      cfg,
		embedder: e,
		newIndex: func(context.Context, string, []string) (embedding.Index, error) {
			return embedding.NewMemoryIndex(), nil
		},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Semantic) Name() Name { return NameSemantic }

// Init initialises the embedder once. A failure disables the pass.
func (s *Semantic) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked(ctx)
}

func (s *Semantic) initLocked(ctx context.Context) error {
	if s.ready || s.initErr != nil {
		return s.initErr
	}
	if s.embedder == nil {
		s.initErr = fmt.Errorf("%w: no embedder configured", ErrStrategyUnavailable)
		return s.initErr
	}
	if err := s.embedder.Init(ctx); err != nil {
		s.initErr = fmt.Errorf("%w: %v", ErrStrategyUnavailable, err)
		s.logger.Warn("semantic pass disabled", "strategy", NameSemantic, "err", err)
		return s.initErr
	}
	s.ready = true
	return nil
}

// Close releases the embedder and the label index.
func (s *Semantic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.index != nil {
		errs = append(errs, s.index.Close())
		s.index = nil
	}
	if s.embedder != nil {
		errs = append(errs, s.embedder.Close())
	}
	return errors.Join(errs...)
}

func (s *Semantic) Match(ctx context.Context, doc *Document, snap *taxonomy.Snapshot) Outcome {
	index, err := s.indexFor(ctx, snap)
	if err != nil {
		return Unavailable(NameSemantic, err)
	}

	query, err := s.embedder.EmbedQuery(ctx, truncateRunes(doc.Text, s.cfg.MaxChars))
	if err != nil {
		return Unavailable(NameSemantic, fmt.Errorf("embed document: %w", err))
	}
	hits, err := index.Search(ctx, query, s.cfg.TopK)
	if err != nil {
		return Unavailable(NameSemantic, fmt.Errorf("search labels: %w", err))
	}

	var out []Candidate
	for _, h := range hits {
		if h.Score < s.cfg.Threshold {
			continue
		}
		entry, ok := snap.Lookup(h.Label)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			Original: h.Label,
			Entry:    entry,
			Start:    -1,
			End:      -1,
			Score:    min(h.Score, 1),
			Strategy: NameSemantic,
		})
	}
	return Ok(NameSemantic, out)
}

// indexFor returns the label index for snap, rebuilding it when the snapshot
// version changed.
func (s *Semantic) indexFor(ctx context.Context, snap *taxonomy.Snapshot) (embedding.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.initLocked(ctx); err != nil {
		return nil, err
	}
	if s.index != nil && s.version == snap.Version() {
		return s.index, nil
	}

	labels := snap.AllLabels()
	if len(labels) > s.cfg.MaxCandidates {
		labels = labels[:s.cfg.MaxCandidates]
	}

	index, err := s.newIndex(ctx, s.embedder.Model(), labels)
	if err != nil {
		return nil, fmt.Errorf("open label index: %w", err)
	}
	todo := labels
	if stored, ok := index.(embedding.Stored); ok {
		if todo, err = stored.Missing(ctx, labels); err != nil {
			index.Close()
			return nil, fmt.Errorf("read stored label vectors: %w", err)
		}
	}
	for start := 0; start < len(todo); start += semanticEmbedBatchSize {
		end := min(start+semanticEmbedBatchSize, len(todo))
		vecs, err := s.embedder.Embed(ctx, todo[start:end])
		if err != nil {
			index.Close()
			return nil, fmt.Errorf("embed labels: %w", err)
		}
		if err := index.Add(ctx, todo[start:end], vecs); err != nil {
			index.Close()
			return nil, err
		}
	}

	if s.index != nil {
		s.index.Close()
	}
	s.index, s.version = index, snap.Version()
	s.logger.Debug("semantic label index built",
		"labels", index.Len(), "embedded", len(todo), "version", s.version)
	return index, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	i := n
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
