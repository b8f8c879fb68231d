package infer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/qinfer/internal/cqn"
)

// ResolveAll resolves queries concurrently against the inferrer's model,
// with at most parallelism resolutions in flight (unbounded when
// parallelism < 1). Results are returned in input order. The first error
// cancels the remaining resolutions.
func (i *Inferrer) ResolveAll(ctx context.Context, queries []cqn.Query, parallelism int) ([]*Result, error) {
	results := make([]*Result, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for idx, q := range queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := i.Resolve(q)
			if err != nil {
				return fmt.Errorf("query %d: %w", idx, err)
			}
			results[idx] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
