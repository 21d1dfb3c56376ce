package backtest

import (
	"context"
	"time"

	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/strategy"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SweepJob is one independent run. Strategy must be an instance no other
// job holds.
type SweepJob struct {
	Name     string
	Strategy strategy.Strategy
	Options  Options
}

type SweepResult struct {
	Name   string
	Result *Result
	Err    error
}

// Sweep runs jobs concurrently over the same read-only series, at most
// limit at a time (unbounded when limit <= 0). Results come back in job
// order. A failing job records its error and does not stop the others;
// the returned error is only set when ctx is cancelled.
func Sweep(ctx context.Context, jobs []SweepJob, series market.Series, start, end time.Time, limit int, log logrus.FieldLogger) ([]SweepResult, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	results := make([]SweepResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			eng := NewEngine(job.Options, job.Strategy, log.WithField("job", job.Name))
			res, err := eng.Run(gctx, series, start, end)
			results[i] = SweepResult{Name: job.Name, Result: res, Err: err}
			if err != nil {
				log.WithField("job", job.Name).WithError(err).Warn("sweep job failed")
			}
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
