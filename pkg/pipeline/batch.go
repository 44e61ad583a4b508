package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Input is one document of a batch.
type Input struct {
	Text string
	Role string
}

// ExtractBatch extracts every input concurrently, at most Config.Workers at a
// time. Results are in input order. The first failing document cancels the
// rest.
func (p *Pipeline) ExtractBatch(ctx context.Context, inputs []Input) ([]*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil pipeline", ErrInvalidInput)
	}
	results := make([]*Result, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, in := range inputs {
		g.Go(func() error {
			res, err := p.Extract(ctx, in.Text, in.Role)
			if err != nil {
				return fmt.Errorf("document %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
