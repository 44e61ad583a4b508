// Package pipeline runs the match passes over a document against one taxonomy
// snapshot and merges their candidates into leveled competence matches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kittclouds/skillscan/pkg/discovery"
	"github.com/kittclouds/skillscan/pkg/matcher"
	"github.com/kittclouds/skillscan/pkg/taxonomy"
)

// ErrInvalidInput indicates text that is not valid UTF-8 or a nil pipeline.
var ErrInvalidInput = errors.New("invalid extraction input")

// Config tunes the pipeline.
type Config struct {
	// EmitDiscoveries appends unknown terms to the matches as level-1
	// discovery matches. They are always reported in Result.Discoveries.
	EmitDiscoveries bool

	// Workers bounds ExtractBatch concurrency.
	Workers int
}

// PassReport is the outcome of one pass for one document.
type PassReport struct {
	Strategy   matcher.Name
	Candidates int
	Err        error // non-nil when the pass was unavailable
}

// Result is the outcome of one extraction call.
type Result struct {
	Matches     []CompetenceMatch
	Discoveries []discovery.Candidate
	Passes      []PassReport
	Tier        taxonomy.Tier
	Version     uint64
}

// Pipeline runs the match passes in priority order. It holds no per-call
// state and is safe for concurrent use.
type Pipeline struct {
	repo       taxonomy.Repository
	strategies []matcher.Strategy
	detector   *discovery.Detector
	cfg        Config
	logger     *slog.Logger
	registerer prometheus.Registerer
	metrics    *pipelineMetrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithStrategies replaces the default passes. Order is priority.
func WithStrategies(s ...matcher.Strategy) Option {
	return func(p *Pipeline) { p.strategies = s }
}

// WithDetector replaces the default discovery detector. A nil detector
// disables discovery.
func WithDetector(d *discovery.Detector) Option {
	return func(p *Pipeline) { p.detector = d }
}

// WithMetrics registers the pipeline metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(p *Pipeline) { p.registerer = reg }
}

// DefaultStrategies returns the alias, fuzzy and n-gram passes.
func DefaultStrategies(fuzzyThreshold float64) []matcher.Strategy {
	return []matcher.Strategy{
		matcher.Alias{},
		matcher.NewFuzzy(fuzzyThreshold),
		matcher.NGram{},
	}
}

// New creates a pipeline over repo.
func New(repo taxonomy.Repository, cfg Config, opts ...Option) (*Pipeline, error) {
	if repo == nil {
		return nil, fmt.Errorf("%w: nil repository", ErrInvalidInput)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	p := &Pipeline{
		repo:       repo,
		strategies: DefaultStrategies(matcher.DefaultFuzzyThreshold),
		detector:   discovery.NewDetector(discovery.Config{}, nil),
		cfg:        cfg,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	m, err := newPipelineMetrics(p.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	p.metrics = m
	return p, nil
}

// Extract finds the competences in text. Every match carries role as its
// role context. Unavailable passes are reported in Result.Passes and do not
// fail the call.
func (p *Pipeline) Extract(ctx context.Context, text, role string) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil pipeline", ErrInvalidInput)
	}
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidInput)
	}
	start := time.Now()
	defer func() { p.metrics.recordDuration(time.Since(start)) }()

	snap := p.repo.Snapshot()
	res := &Result{Tier: snap.Tier(), Version: snap.Version()}

	doc := matcher.NewDocument(text)
	defer doc.Release()

	merge := newMerger(snap, role)
	for _, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := s.Match(ctx, doc, snap)
		report := PassReport{Strategy: s.Name(), Candidates: len(out.Candidates), Err: out.Err}
		res.Passes = append(res.Passes, report)
		if !out.Available() {
			p.metrics.recordUnavailable(s.Name())
			p.logger.Debug("match pass unavailable", "strategy", s.Name(), "err", out.Err)
			continue
		}
		for _, c := range out.Candidates {
			// Duplicates still claim their span so later passes skip it.
			doc.Cover(c.Start, c.End)
			merge.add(c)
		}
	}

	if p.detector != nil {
		res.Discoveries = p.detector.Detect(doc, snap, role)
		if p.cfg.EmitDiscoveries {
			for _, d := range res.Discoveries {
				merge.addDiscovery(d)
			}
		}
	}

	res.Matches = merge.result()
	p.metrics.recordMatches(res.Matches)
	p.logger.Debug("extraction done",
		"matches", len(res.Matches),
		"discoveries", len(res.Discoveries),
		"tier", res.Tier,
		"version", res.Version)
	return res, nil
}

// Close releases passes that hold resources, such as the semantic pass.
func (p *Pipeline) Close() error {
	var errs []error
	for _, s := range p.strategies {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
