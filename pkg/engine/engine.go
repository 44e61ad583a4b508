// Package engine closes the discovery feedback loop: extraction feeds unknown
// terms into the ledger, and approved terms flow back into the taxonomy.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kittclouds/skillscan/pkg/ledger"
	"github.com/kittclouds/skillscan/pkg/pipeline"
	"github.com/kittclouds/skillscan/pkg/taxonomy"
)

// Repository is the taxonomy the engine extracts against and promotes
// approved terms into.
type Repository interface {
	taxonomy.Repository
	ledger.AliasSink
}

// Engine wires a repository, a pipeline and a ledger.
type Engine struct {
	repo     Repository
	pipeline *pipeline.Pipeline
	ledger   *ledger.Ledger
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine and replays persisted approvals into repo. The
// ledger should forward approvals to repo (ledger.WithAliasSink).
func New(ctx context.Context, repo Repository, p *pipeline.Pipeline, l *ledger.Ledger, opts ...Option) (*Engine, error) {
	if repo == nil || p == nil || l == nil {
		return nil, errors.New("engine: repository, pipeline and ledger are required")
	}
	e := &Engine{repo: repo, pipeline: p, ledger: l, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}

	n, err := l.Replay(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay approvals: %w", err)
	}
	if n > 0 {
		e.logger.Info("approvals replayed", "count", n)
	}
	return e, nil
}

// Process extracts the competences of one document and records its unknown
// terms in the ledger. A ledger failure is returned along with the result.
func (e *Engine) Process(ctx context.Context, text, role string) (*pipeline.Result, error) {
	res, err := e.pipeline.Extract(ctx, text, role)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Record(ctx, sightings(nil, res)); err != nil {
		return res, fmt.Errorf("record discoveries: %w", err)
	}
	return res, nil
}

// ProcessBatch extracts every input and records the discoveries of all of
// them in one ledger write.
func (e *Engine) ProcessBatch(ctx context.Context, inputs []pipeline.Input) ([]*pipeline.Result, error) {
	results, err := e.pipeline.ExtractBatch(ctx, inputs)
	if err != nil {
		return nil, err
	}
	var candidates []ledger.Candidate
	for _, res := range results {
		candidates = sightings(candidates, res)
	}
	if err := e.ledger.Record(ctx, candidates); err != nil {
		return results, fmt.Errorf("record discoveries: %w", err)
	}
	return results, nil
}

// sightings appends one ledger sighting per discovery of res.
func sightings(dst []ledger.Candidate, res *pipeline.Result) []ledger.Candidate {
	for _, d := range res.Discoveries {
		dst = append(dst, ledger.Candidate{
			Term:    d.Term,
			Role:    d.Role,
			Count:   1,
			Context: d.Context,
		})
	}
	return dst
}

// Approve promotes term to an alias of canonical.
func (e *Engine) Approve(ctx context.Context, term, canonical string) error {
	return e.ledger.Approve(ctx, term, canonical)
}

// Ignore suppresses term permanently.
func (e *Engine) Ignore(ctx context.Context, term string) error {
	return e.ledger.Ignore(ctx, term)
}

// Pending lists pending discoveries, most frequent first.
func (e *Engine) Pending(ctx context.Context) ([]ledger.Candidate, error) {
	return e.ledger.Pending(ctx)
}

// Repository returns the engine's taxonomy.
func (e *Engine) Repository() Repository { return e.repo }

// Close releases the pipeline and the ledger.
func (e *Engine) Close() error {
	return errors.Join(e.pipeline.Close(), e.ledger.Close())
}
