package task

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/iSevenDays/motleycrew/internal/graphstore"
	"github.com/iSevenDays/motleycrew/internal/worker"
)

// Recipe produces tasks on demand and reports when it is exhausted.
type Recipe interface {
	ID() string
	Name() string
	Description() string
	// Node is the recipe's TaskRecipe graph node. The crew keeps its done property
	// in sync with Done before persisting it.
	Node() *graphstore.Node
	// NextTask returns a new task, or nil when nothing is currently dispatchable.
	NextTask(ctx context.Context) (*Task, error)
	// Worker returns the worker for the next task, augmented with extraTools.
	Worker(extraTools []worker.Tool) (worker.Worker, error)
	RegisterCompletedTask(ctx context.Context, t *Task) error
	Done() bool
	Tasks() []*Task
}

// FailureRecorder is implemented by recipes that want to observe failed tasks.
type FailureRecorder interface {
	RegisterFailedTask(ctx context.Context, t *Task) error
}

// Crew is the scheduler view a recipe receives once registered.
type Crew interface {
	Store() graphstore.Store
}

// CrewBinder is implemented by recipes that keep a reference to their scheduler.
type CrewBinder interface {
	BindCrew(c Crew)
}

var ErrNoWorker = errors.New("task: recipe has no worker")

// BaseRecipe carries the identity, node, worker binding and task bookkeeping shared by
// recipe implementations. Embed it and implement NextTask and RegisterCompletedTask.
type BaseRecipe struct {
	id          string
	name        string
	description string
	worker      worker.Worker
	tools       []worker.Tool
	node        *graphstore.Node
	tasks       []*Task
	crew        Crew
}

// NewBaseRecipe creates the shared recipe state with a fresh ID and a not-done node.
func NewBaseRecipe(name, description string, w worker.Worker, tools []worker.Tool) BaseRecipe {
	id := uuid.NewString()
	if name == "" {
		name = "recipe-" + id[:8]
	}
	node := &graphstore.Node{ID: id, Label: RecipeLabel}
	node.SetProp("name", name)
	node.SetProp("description", description)
	node.SetProp(PropDone, "false")
	return BaseRecipe{id: id, name: name, description: description, worker: w, tools: tools, node: node}
}

func (b *BaseRecipe) ID() string { return b.id }
func (b *BaseRecipe) Name() string { return b.name }
func (b *BaseRecipe) Description() string { return b.description }
func (b *BaseRecipe) Node() *graphstore.Node { return b.node }
func (b *BaseRecipe) Tasks() []*Task { return b.tasks }
func (b *BaseRecipe) Tools() []worker.Tool { return b.tools }
func (b *BaseRecipe) BindCrew(c Crew) { b.crew = c }
func (b *BaseRecipe) Crew() Crew { return b.crew }
func (b *BaseRecipe) Done() bool { return b.node.Prop(PropDone) == "true" }
func (b *BaseRecipe) SetDone(done bool) { b.node.SetProp(PropDone, strconv.FormatBool(done)) }
func (b *BaseRecipe) AddTask(t *Task) { b.tasks = append(b.tasks, t) }

// Worker binds the recipe's own tools and extraTools to its worker.
func (b *BaseRecipe) Worker(extraTools []worker.Tool) (worker.Worker, error) {
	if b.worker == nil {
		return nil, ErrNoWorker
	}
	tools := make([]worker.Tool, 0, len(b.tools)+len(extraTools))
	tools = append(tools, b.tools...)
	tools = append(tools, extraTools...)
	return worker.Bind(b.worker, tools), nil
}

// LastDone returns the most recently completed task, or nil.
func (b *BaseRecipe) LastDone() *Task {
	for i := len(b.tasks) - 1; i >= 0; i-- {
		if b.tasks[i].Status == StatusDone {
			return b.tasks[i]
		}
	}
	return nil
}

// LastDone returns the most recently completed task of any recipe, or nil.
func LastDone(r Recipe) *Task {
	if b, ok := r.(interface{ LastDone() *Task }); ok {
		return b.LastDone()
	}
	tasks := r.Tasks()
	for i := len(tasks) - 1; i >= 0; i-- {
		if tasks[i].Status == StatusDone {
			return tasks[i]
		}
	}
	return nil
}
