package recognize

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kiteline/scorescribe/internal/model"
)

// Pool fans recognition work out to a bounded set of workers with a shared
// rate limit, keeping the blocking engine off the caller's critical path.
type Pool struct {
	engine  Engine
	workers int
	limiter *rate.Limiter
}

// NewPool wraps an engine. workers bounds concurrent calls; ratePerSec caps
// total call rate (0 disables the limit).
func NewPool(engine Engine, workers int, ratePerSec float64) *Pool {
	if workers <= 0 {
		workers = 2
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Pool{
		engine:  engine,
		workers: workers,
		limiter: rate.NewLimiter(limit, workers),
	}
}

func (p *Pool) Recognize(ctx context.Context, image []byte) ([]model.Token, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.engine.Recognize(ctx, image)
}

func (p *Pool) Available() bool {
	return p.engine.Available()
}

// RecognizeBatch processes several images concurrently, preserving order.
// The first error cancels the remaining work.
func (p *Pool) RecognizeBatch(ctx context.Context, images [][]byte) ([][]model.Token, error) {
	out := make([][]model.Token, len(images))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			tokens, err := p.Recognize(ctx, img)
			if err != nil {
				return err
			}
			out[i] = tokens
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
