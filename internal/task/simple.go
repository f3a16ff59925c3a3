package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/iSevenDays/motleycrew/internal/worker"
)

var ErrNameGenerationUnsupported = errors.New("task: name generation is not supported")

// SimpleTaskRecipe produces exactly one task from its description and is done once that
// task completes. After a failure it yields nothing until Retry is called.
type SimpleTaskRecipe struct {
	BaseRecipe
	pending *Task
	failed  bool
}

// SimpleOption configures a SimpleTaskRecipe.
type SimpleOption func(*simpleConfig)

type simpleConfig struct {
	name         string
	generateName bool
	tools        []worker.Tool
}

// WithName sets the recipe name.
func WithName(name string) SimpleOption { return func(c *simpleConfig) { c.name = name } }

// WithTools adds recipe-scoped tools handed to the worker.
func WithTools(tools ...worker.Tool) SimpleOption {
	return func(c *simpleConfig) { c.tools = append(c.tools, tools...) }
}

// WithGeneratedName requests a generated name. Unsupported.
func WithGeneratedName() SimpleOption { return func(c *simpleConfig) { c.generateName = true } }

// NewSimpleTaskRecipe builds a recipe whose single task runs description on w.
func NewSimpleTaskRecipe(description string, w worker.Worker, opts ...SimpleOption) (*SimpleTaskRecipe, error) {
	var cfg simpleConfig
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.generateName {
		return nil, ErrNameGenerationUnsupported
	}
	if w == nil {
		return nil, ErrNoWorker
	}
	return &SimpleTaskRecipe{BaseRecipe: NewBaseRecipe(cfg.name, description, w, cfg.tools)}, nil
}

func (r *SimpleTaskRecipe) NextTask(ctx context.Context) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Done() || r.pending != nil || r.failed {
		return nil, nil
	}
	t := New(r.ID(), r.Name(), r.Description())
	r.pending = t
	r.AddTask(t)
	return t, nil
}

func (r *SimpleTaskRecipe) RegisterCompletedTask(ctx context.Context, t *Task) error {
	if t == nil || t != r.pending {
		return fmt.Errorf("recipe %s: completed task is not the pending task", r.Name())
	}
	if t.Status != StatusDone {
		return fmt.Errorf("recipe %s: task %s is %s, not done", r.Name(), t.ID, t.Status)
	}
	r.pending = nil
	r.SetDone(true)
	return nil
}

func (r *SimpleTaskRecipe) RegisterFailedTask(ctx context.Context, t *Task) error {
	if t == nil || t != r.pending {
		return fmt.Errorf("recipe %s: failed task is not the pending task", r.Name())
	}
	r.pending = nil
	r.failed = true
	return nil
}

// Failed reports whether the last task failed and the recipe has not been retried.
func (r *SimpleTaskRecipe) Failed() bool { return r.failed }

// Retry re-arms a failed recipe so NextTask yields a new task.
func (r *SimpleTaskRecipe) Retry() { r.failed = false }

var (
	_ Recipe          = (*SimpleTaskRecipe)(nil)
	_ FailureRecorder = (*SimpleTaskRecipe)(nil)
	_ CrewBinder      = (*SimpleTaskRecipe)(nil)
)
