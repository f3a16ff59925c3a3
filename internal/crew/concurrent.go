package crew

import (
	"context"

	"github.com/iSevenDays/motleycrew/internal/otel"
	"github.com/iSevenDays/motleycrew/internal/task"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

type invocation struct {
	d   *dispatched
	out any
	err error
}

// runConcurrent keeps every available recipe busy, bounded by maxParallel and one task per
// recipe. Workers run on errgroup goroutines; results are applied here, one at a time.
// After a fatal error nothing new is dispatched and in-flight work is drained.
func (c *Crew) runConcurrent(parent context.Context) ([]*task.Task, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		g        errgroup.Group
		results  = make(chan invocation)
		inFlight = make(map[string]bool)
		done     []*task.Task
		failures []error
		fatal    error
	)
	fail := func(err error) {
		if fatal == nil {
			fatal = err
			cancel()
		}
	}

	for {
		if fatal == nil && parent.Err() != nil {
			fail(parent.Err())
		}
		if fatal == nil {
			if err := c.fill(ctx, &g, results, inFlight); err != nil {
				fail(err)
			}
		}
		if len(inFlight) == 0 {
			break
		}
		res := <-results
		delete(inFlight, res.d.recipe.ID())
		failure, err := c.apply(ctx, res.d, res.out, res.err)
		switch {
		case err != nil:
			fail(err)
		case failure != nil:
			failures = append(failures, failure)
		default:
			done = append(done, res.d.task)
		}
	}
	_ = g.Wait()
	if fatal != nil {
		return done, fatal
	}
	c.log.Debug("nothing left to dispatch")
	return done, multierr.Combine(failures...)
}

// fill dispatches the next task of each available recipe that has none in flight.
func (c *Crew) fill(ctx context.Context, g *errgroup.Group, results chan<- invocation, inFlight map[string]bool) error {
	otel.RecordRound(ctx, string(ModeConcurrent))
	available, err := c.AvailableTaskRecipes(ctx)
	if err != nil {
		return err
	}
	for _, r := range available {
		if c.maxParallel > 0 && len(inFlight) >= c.maxParallel {
			return nil
		}
		if inFlight[r.ID()] || r.Done() {
			continue
		}
		d, err := c.dispatch(ctx, r)
		if err != nil {
			return err
		}
		if d == nil {
			continue
		}
		inFlight[r.ID()] = true
		g.Go(func() error {
			out, err := c.invoke(ctx, d)
			results <- invocation{d: d, out: out, err: err}
			return nil
		})
	}
	return nil
}
