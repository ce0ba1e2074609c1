// Package sweep runs many independent backtests over one bar series.
package sweep

import (
	"context"
	"errors"
	"fmt"

	"github.com/guyghost/cryptosim/internal/backtesting"
	"github.com/guyghost/cryptosim/internal/market"
	"github.com/guyghost/cryptosim/internal/storage"
	"github.com/guyghost/cryptosim/internal/strategy"
	"golang.org/x/sync/errgroup"
)

// Job is one strategy/config pair to evaluate.
type Job struct {
	Name     string
	Strategy strategy.Strategy
	Config   backtesting.RunConfig
}

// Outcome pairs a job with its result. Err holds failures of that job only.
type Outcome struct {
	Job    string
	Result *backtesting.Result
	Err    error
}

// Options tune a sweep.
type Options struct {
	// Workers bounds concurrent engines; values below 1 mean 1.
	Workers int
	// Store, when set, receives every result that was produced.
	Store storage.ResultStore
}

// Run evaluates jobs concurrently and returns outcomes in job order. A job
// that fails does not stop the others; Run only returns an error when ctx is
// done or a result cannot be stored.
func Run(ctx context.Context, bars []market.Bar, jobs []Job, opts Options) ([]Outcome, error) {
	outcomes := make([]Outcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Workers, 1))

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := Outcome{Job: job.Name}
			engine, err := backtesting.NewEngine(job.Strategy, job.Config)
			if err != nil {
				out.Err = err
				outcomes[i] = out
				return nil
			}
			out.Result, out.Err = engine.Run(gctx, bars)
			outcomes[i] = out

			if opts.Store != nil && out.Result != nil {
				if err := opts.Store.Save(gctx, out.Result); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
					return fmt.Errorf("store %s: %w", job.Name, err)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, ctx.Err()
}
