package coerce

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ggoodman/optshape/shape"
)

// All coerces every input against s in parallel and returns the results in
// input order. The first failure cancels the remaining work and is returned
// wrapped with its input index.
func All(ctx context.Context, e *Engine, s shape.Shape, inputs []any) ([]*Result, error) {
	results := make([]*Result, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := e.Coerce(s, in)
			if err != nil {
				return fmt.Errorf("coerce: input %d: %w", i, err)
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
