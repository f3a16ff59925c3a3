package crew

import (
	"context"
	"fmt"
	"time"

	"github.com/iSevenDays/motleycrew/internal/otel"
	"github.com/iSevenDays/motleycrew/internal/task"
	"github.com/iSevenDays/motleycrew/internal/worker"
	"go.uber.org/multierr"
)

// Run dispatches tasks until no available recipe yields a new one. It returns the
// completed tasks in completion order. Worker failures do not stop the run; they are
// returned combined as *TaskFailedError values once it settles. Store, recipe and
// context errors stop the run immediately.
func (c *Crew) Run(ctx context.Context) ([]*task.Task, error) {
	c.log.Info("crew run starting", "mode", c.mode, "recipes", len(c.recipes))
	var (
		done []*task.Task
		err  error
	)
	if c.mode == ModeConcurrent {
		done, err = c.runConcurrent(ctx)
	} else {
		done, err = c.runSync(ctx)
	}
	c.log.Info("crew run finished", "done", len(done), "failed", len(c.failed), "err", err)
	return done, err
}

func (c *Crew) runSync(ctx context.Context) ([]*task.Task, error) {
	var (
		done     []*task.Task
		failures []error
	)
	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		otel.RecordRound(ctx, string(ModeSync))
		available, err := c.AvailableTaskRecipes(ctx)
		if err != nil {
			return done, err
		}
		c.log.Debug("available task recipes", "count", len(available))

		progressed := false
		for _, r := range available {
			if r.Done() {
				continue
			}
			d, err := c.dispatch(ctx, r)
			if err != nil {
				return done, err
			}
			if d == nil {
				c.log.Debug("recipe yielded no task", "recipe", r.Name())
				continue
			}
			out, invokeErr := c.invoke(ctx, d)
			failure, err := c.apply(ctx, d, out, invokeErr)
			if err != nil {
				return done, err
			}
			progressed = true
			if failure != nil {
				failures = append(failures, failure)
				continue
			}
			done = append(done, d.task)
		}
		if !progressed {
			c.log.Debug("nothing left to dispatch")
			return done, multierr.Combine(failures...)
		}
	}
}

// dispatched is a task handed to a worker.
type dispatched struct {
	recipe task.Recipe
	task   *task.Task
	worker worker.Worker
	input  map[string]any
}

// dispatch asks r for its next task and marks it running. It returns nil when r has
// nothing to run.
func (c *Crew) dispatch(ctx context.Context, r task.Recipe) (*dispatched, error) {
	t, err := r.NextTask(ctx)
	if err != nil {
		return nil, fmt.Errorf("crew: recipe %q: next task: %w", r.Name(), err)
	}
	if t == nil {
		return nil, nil
	}
	w, err := r.Worker(c.ExtraTools(r))
	if err != nil {
		return nil, fmt.Errorf("crew: recipe %q: worker: %w", r.Name(), err)
	}
	upstream, err := c.upstreamOutputs(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := t.SetRunning(); err != nil {
		return nil, fmt.Errorf("crew: recipe %q: %w", r.Name(), err)
	}
	if err := c.store.InsertNode(ctx, t.Node()); err != nil {
		return nil, fmt.Errorf("crew: recipe %q: persist task %s: %w", r.Name(), t.ID, err)
	}
	if err := c.store.CreateRelation(ctx, r.Node(), t.Node(), task.RelationProduced); err != nil {
		return nil, fmt.Errorf("crew: recipe %q: link task %s: %w", r.Name(), t.ID, err)
	}
	otel.RecordTaskOp(ctx, "dispatch", r.Name(), string(t.Status))
	otel.AddInFlight()
	c.log.Info("dispatching task", "recipe", r.Name(), "task", t.ID)
	return &dispatched{recipe: r, task: t, worker: w, input: t.Input(upstream)}, nil
}

// upstreamOutputs maps each upstream recipe name to the output of its last done task.
func (c *Crew) upstreamOutputs(ctx context.Context, r task.Recipe) (map[string]any, error) {
	rels, err := c.store.ListRelations(ctx, task.RelationIsUpstream)
	if err != nil {
		return nil, fmt.Errorf("crew: recipe %q: list upstream: %w", r.Name(), err)
	}
	out := make(map[string]any)
	for _, rel := range rels {
		if rel.ToID != r.ID() {
			continue
		}
		up, ok := c.byID[rel.FromID]
		if !ok {
			continue
		}
		if last := task.LastDone(up); last != nil {
			out[up.Name()] = last.Output
		}
	}
	return out, nil
}

func (c *Crew) invoke(ctx context.Context, d *dispatched) (any, error) {
	if c.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.taskTimeout)
		defer cancel()
	}
	start := time.Now()
	out, err := d.worker.Invoke(ctx, d.input)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	otel.RecordWorkerInvoke(ctx, d.recipe.Name(), outcome, time.Since(start))
	return out, err
}

// apply records a finished invocation. failure is a worker failure the run survives;
// err is fatal.
func (c *Crew) apply(ctx context.Context, d *dispatched, out any, invokeErr error) (failure, err error) {
	otel.RemoveInFlight()
	r, t := d.recipe, d.task
	// Finished work is recorded even when the run is being cancelled.
	storeCtx := ctx
	if ctx.Err() != nil {
		storeCtx = context.WithoutCancel(ctx)
	}

	if invokeErr != nil {
		if err := t.SetFailed(invokeErr); err != nil {
			return nil, fmt.Errorf("crew: recipe %q: %w", r.Name(), err)
		}
		c.failed = append(c.failed, t)
		otel.RecordTaskOp(storeCtx, "fail", r.Name(), string(t.Status))
		if err := c.store.InsertNode(storeCtx, t.Node()); err != nil {
			return nil, fmt.Errorf("crew: recipe %q: persist task %s: %w", r.Name(), t.ID, err)
		}
		if fr, ok := r.(task.FailureRecorder); ok {
			if err := fr.RegisterFailedTask(storeCtx, t); err != nil {
				return nil, fmt.Errorf("crew: recipe %q: register failed task: %w", r.Name(), err)
			}
		}
		if err := c.persistRecipe(storeCtx, r); err != nil {
			return nil, fmt.Errorf("crew: recipe %q: persist recipe: %w", r.Name(), err)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("crew: recipe %q task %s: %w", r.Name(), t.ID, ctx.Err())
		}
		c.log.Warn("task failed", "recipe", r.Name(), "task", t.ID, "err", invokeErr)
		return &TaskFailedError{Recipe: r.Name(), TaskID: t.ID, Err: invokeErr}, nil
	}

	value, direct := worker.Unwrap(out)
	if err := t.SetDone(value, direct); err != nil {
		return nil, fmt.Errorf("crew: recipe %q: %w", r.Name(), err)
	}
	otel.RecordTaskOp(storeCtx, "complete", r.Name(), string(t.Status))
	if err := c.store.InsertNode(storeCtx, t.Node()); err != nil {
		return nil, fmt.Errorf("crew: recipe %q: persist task %s: %w", r.Name(), t.ID, err)
	}
	if err := r.RegisterCompletedTask(storeCtx, t); err != nil {
		return nil, fmt.Errorf("crew: recipe %q: register completed task: %w", r.Name(), err)
	}
	if err := c.persistRecipe(storeCtx, r); err != nil {
		return nil, fmt.Errorf("crew: recipe %q: persist recipe: %w", r.Name(), err)
	}
	c.log.Info("task completed", "recipe", r.Name(), "task", t.ID, "direct", direct, "recipe_done", r.Done())
	return nil, nil
}
