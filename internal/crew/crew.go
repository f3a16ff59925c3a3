// Package crew schedules task recipes over a graph store. Recipes are TaskRecipe nodes,
// dependencies are task_recipe_is_upstream edges between them, and a recipe is
// available when it is not done and none of its upstream recipes is pending.
package crew

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/iSevenDays/motleycrew/internal/graphstore"
	"github.com/iSevenDays/motleycrew/internal/task"
	"github.com/iSevenDays/motleycrew/internal/worker"
)

// Mode selects the dispatch loop.
type Mode string

const (
	ModeSync       Mode = "sync"
	ModeConcurrent Mode = "concurrent"
)

// ParseMode maps a configuration string to a Mode. Empty means sync.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSync:
		return ModeSync, nil
	case ModeConcurrent:
		return ModeConcurrent, nil
	default:
		return "", fmt.Errorf("crew: unknown mode %q", s)
	}
}

// Options configures a Crew.
type Options struct {
	Store       graphstore.Store
	Tools       []worker.Tool
	Mode        Mode
	MaxParallel int           // concurrent mode only; 0 = unbounded
	TaskTimeout time.Duration // 0 = no per-task deadline
	Logger      *slog.Logger
}

// Crew is the scheduler. It is not safe for concurrent use; Run owns it until it returns.
type Crew struct {
	store       graphstore.Store
	tools       []worker.Tool
	mode        Mode
	maxParallel int
	taskTimeout time.Duration
	log         *slog.Logger

	recipes []task.Recipe
	byID    map[string]task.Recipe
	byName  map[string]task.Recipe
	failed  []*task.Task
}

// New creates a Crew over opts.Store.
func New(opts Options) (*Crew, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	if opts.MaxParallel < 0 {
		return nil, fmt.Errorf("crew: max parallel must be >= 0, got %d", opts.MaxParallel)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Crew{
		store:       opts.Store,
		tools:       opts.Tools,
		mode:        mode,
		maxParallel: opts.MaxParallel,
		taskTimeout: opts.TaskTimeout,
		log:         log,
		byID:        make(map[string]task.Recipe),
		byName:      make(map[string]task.Recipe),
	}, nil
}

// Store returns the graph store the crew schedules against.
func (c *Crew) Store() graphstore.Store { return c.store }

// Mode returns the dispatch mode.
func (c *Crew) Mode() Mode { return c.mode }

// AddTools adds crew-scoped tools offered to every recipe's worker.
func (c *Crew) AddTools(tools ...worker.Tool) { c.tools = append(c.tools, tools...) }

// RegisterTaskRecipes adds recipes to the crew and persists their nodes. Registering an
// already registered recipe is a no-op.
func (c *Crew) RegisterTaskRecipes(ctx context.Context, recipes ...task.Recipe) error {
	if err := c.checkNames(recipes); err != nil {
		return err
	}
	if err := c.store.EnsureRelationTable(ctx, task.RecipeLabel, task.RecipeLabel, task.RelationIsUpstream); err != nil {
		return fmt.Errorf("crew: ensure relation table: %w", err)
	}
	if err := c.store.EnsureRelationTable(ctx, task.RecipeLabel, task.TaskLabel, task.RelationProduced); err != nil {
		return fmt.Errorf("crew: ensure relation table: %w", err)
	}
	for _, r := range recipes {
		if existing, ok := c.byID[r.ID()]; ok && existing == r {
			continue
		}
		if err := c.persistRecipe(ctx, r); err != nil {
			return fmt.Errorf("crew: register recipe %q: %w", r.Name(), err)
		}
		if b, ok := r.(task.CrewBinder); ok {
			b.BindCrew(c)
		}
		c.recipes = append(c.recipes, r)
		c.byID[r.ID()] = r
		c.byName[r.Name()] = r
		c.log.Debug("registered task recipe", "recipe", r.Name(), "id", r.ID())
	}
	return nil
}

// checkNames rejects nil recipes and name clashes across the batch and the registered set.
func (c *Crew) checkNames(recipes []task.Recipe) error {
	seen := make(map[string]task.Recipe, len(recipes))
	for _, r := range recipes {
		if r == nil {
			return errors.New("crew: nil task recipe")
		}
		if other, ok := c.byName[r.Name()]; ok && other != r {
			return fmt.Errorf("%w: %s", ErrDuplicateRecipeName, r.Name())
		}
		if other, ok := seen[r.Name()]; ok && other != r {
			return fmt.Errorf("%w: %s", ErrDuplicateRecipeName, r.Name())
		}
		seen[r.Name()] = r
	}
	return nil
}

// CreateSimpleTask builds a SimpleTaskRecipe and registers it.
func (c *Crew) CreateSimpleTask(ctx context.Context, description string, w worker.Worker, opts ...task.SimpleOption) (*task.SimpleTaskRecipe, error) {
	r, err := task.NewSimpleTaskRecipe(description, w, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.RegisterTaskRecipes(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (c *Crew) registered(r task.Recipe) bool {
	if r == nil {
		return false
	}
	existing, ok := c.byID[r.ID()]
	return ok && existing == r
}

// AddDependency makes upstream a prerequisite of downstream. Edges that would close a
// cycle are rejected with a *CycleError before the store is touched. Re-adding an
// existing edge is a no-op; rollback only ever removes an edge this call created.
func (c *Crew) AddDependency(ctx context.Context, upstream, downstream task.Recipe) error {
	for _, r := range []task.Recipe{upstream, downstream} {
		if !c.registered(r) {
			name := "<nil>"
			if r != nil {
				name = r.Name()
			}
			return fmt.Errorf("%w: %s", ErrRecipeNotRegistered, name)
		}
	}
	rels, err := c.store.ListRelations(ctx, task.RelationIsUpstream)
	if err != nil {
		return fmt.Errorf("crew: list dependencies: %w", err)
	}
	if cyc := cycleThrough(adjacency(rels), upstream.ID(), downstream.ID()); cyc != nil {
		return &CycleError{Path: c.names(cyc)}
	}
	for _, rel := range rels {
		if rel.FromID == upstream.ID() && rel.ToID == downstream.ID() {
			return nil
		}
	}
	if err := c.store.CreateRelation(ctx, upstream.Node(), downstream.Node(), task.RelationIsUpstream); err != nil {
		c.rollbackDependency(ctx, upstream, downstream)
		return fmt.Errorf("crew: add dependency %s -> %s: %w", upstream.Name(), downstream.Name(), err)
	}
	rels, err = c.store.ListRelations(ctx, task.RelationIsUpstream)
	if err != nil {
		c.rollbackDependency(ctx, upstream, downstream)
		return fmt.Errorf("crew: verify dependency: %w", err)
	}
	if back := findPath(adjacency(rels), downstream.ID(), upstream.ID()); back != nil {
		c.rollbackDependency(ctx, upstream, downstream)
		return &CycleError{Path: c.names(append([]string{upstream.ID()}, back...))}
	}
	c.log.Debug("added dependency", "upstream", upstream.Name(), "downstream", downstream.Name())
	return nil
}

func (c *Crew) rollbackDependency(ctx context.Context, upstream, downstream task.Recipe) {
	if err := c.store.DeleteRelation(context.WithoutCancel(ctx), upstream.Node(), downstream.Node(), task.RelationIsUpstream); err != nil {
		c.log.Warn("dependency rollback failed", "upstream", upstream.Name(), "downstream", downstream.Name(), "err", err)
	}
}

func (c *Crew) names(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		if r, ok := c.byID[id]; ok {
			out[i] = r.Name()
		} else {
			out[i] = id
		}
	}
	return out
}

// AvailableTaskRecipes returns the registered recipes that are not done and have no
// pending upstream recipe, in registration order.
func (c *Crew) AvailableTaskRecipes(ctx context.Context) ([]task.Recipe, error) {
	nodes, err := c.store.Query(ctx, graphstore.Match{
		Label: task.RecipeLabel,
		Props: map[string]string{task.PropDone: "false"},
		Without: &graphstore.Incoming{
			Relation:  task.RelationIsUpstream,
			FromLabel: task.RecipeLabel,
			FromProps: map[string]string{task.PropDone: "false"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("crew: query available recipes: %w", err)
	}
	hit := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		hit[n.ID] = true
	}
	var out []task.Recipe
	for _, r := range c.recipes {
		if hit[r.ID()] {
			out = append(out, r)
		}
	}
	return out, nil
}

// ExtraTools returns the crew-scoped tools offered to recipe's worker.
func (c *Crew) ExtraTools(recipe task.Recipe) []worker.Tool {
	out := make([]worker.Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Recipes returns the registered recipes in registration order.
func (c *Crew) Recipes() []task.Recipe {
	out := make([]task.Recipe, len(c.recipes))
	copy(out, c.recipes)
	return out
}

// Recipe returns the registered recipe with the given name.
func (c *Crew) Recipe(name string) (task.Recipe, bool) {
	r, ok := c.byName[name]
	return r, ok
}

// Dependency is an upstream -> downstream edge between registered recipes.
type Dependency struct {
	Upstream   task.Recipe
	Downstream task.Recipe
}

// Dependencies lists the edges between registered recipes in creation order.
func (c *Crew) Dependencies(ctx context.Context) ([]Dependency, error) {
	rels, err := c.store.ListRelations(ctx, task.RelationIsUpstream)
	if err != nil {
		return nil, fmt.Errorf("crew: list dependencies: %w", err)
	}
	var out []Dependency
	for _, rel := range rels {
		up, okUp := c.byID[rel.FromID]
		down, okDown := c.byID[rel.ToID]
		if okUp && okDown {
			out = append(out, Dependency{Upstream: up, Downstream: down})
		}
	}
	return out, nil
}

// Order returns the registered recipes in dependency order.
func (c *Crew) Order(ctx context.Context) ([]task.Recipe, error) {
	rels, err := c.store.ListRelations(ctx, task.RelationIsUpstream)
	if err != nil {
		return nil, fmt.Errorf("crew: list dependencies: %w", err)
	}
	ids := make([]string, len(c.recipes))
	for i, r := range c.recipes {
		ids[i] = r.ID()
	}
	order, ok := topoOrder(ids, rels)
	if !ok {
		return nil, ErrDependencyCycle
	}
	out := make([]task.Recipe, len(order))
	for i, id := range order {
		out[i] = c.byID[id]
	}
	return out, nil
}

// FailedTasks returns the tasks whose worker failed, in failure order.
func (c *Crew) FailedTasks() []*task.Task {
	out := make([]*task.Task, len(c.failed))
	copy(out, c.failed)
	return out
}

func (c *Crew) persistRecipe(ctx context.Context, r task.Recipe) error {
	n := r.Node()
	if n == nil {
		return fmt.Errorf("%w: recipe %s has no node", graphstore.ErrInvalidNode, r.Name())
	}
	n.SetProp(task.PropDone, strconv.FormatBool(r.Done()))
	return c.store.InsertNode(ctx, n)
}
