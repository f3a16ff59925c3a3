// Package task holds the unit of work (Task) and the producers of tasks (Recipe) the
// crew schedules. Recipes are persisted as TaskRecipe nodes, tasks as Task nodes.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/iSevenDays/motleycrew/internal/graphstore"
)

// Node labels and relation labels written to the graph store.
const (
	RecipeLabel = "TaskRecipe"
	TaskLabel   = "Task"

	// RelationIsUpstream links an upstream TaskRecipe to a downstream TaskRecipe.
	RelationIsUpstream = "task_recipe_is_upstream"
	// RelationProduced links a TaskRecipe to each Task it produced.
	RelationProduced = "task_recipe_produced"

	PropDone = "done"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

var ErrInvalidTransition = errors.New("task: invalid status transition")

var transitions = map[Status][]Status{
	StatusCreated: {StatusRunning},
	StatusRunning: {StatusDone, StatusFailed},
}

// CanTransition reports whether from -> to is allowed. Done and failed are terminal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Task is one dispatchable unit of work produced by a Recipe.
type Task struct {
	ID          string
	Name        string
	Description string
	RecipeID    string
	Status      Status
	Output      any
	Err         error
	Direct      bool // output came from a DirectOutput
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New creates a task in StatusCreated.
func New(recipeID, name, description string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		RecipeID:    recipeID,
		Status:      StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (t *Task) transition(to Status) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s (task %s)", ErrInvalidTransition, t.Status, to, t.ID)
	}
	t.Status = to
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// SetRunning marks the task dispatched.
func (t *Task) SetRunning() error { return t.transition(StatusRunning) }

// SetDone records the worker output.
func (t *Task) SetDone(output any, direct bool) error {
	if err := t.transition(StatusDone); err != nil {
		return err
	}
	t.Output = output
	t.Direct = direct
	return nil
}

// SetFailed records the worker error.
func (t *Task) SetFailed(cause error) error {
	if err := t.transition(StatusFailed); err != nil {
		return err
	}
	t.Err = cause
	return nil
}

// Input builds the worker input for this task. upstream maps upstream recipe names to
// the output of their latest completed task.
func (t *Task) Input(upstream map[string]any) map[string]any {
	if upstream == nil {
		upstream = map[string]any{}
	}
	return map[string]any{
		"id":          t.ID,
		"name":        t.Name,
		"description": t.Description,
		"upstream":    upstream,
	}
}

// Node renders the task as a Task graph node. Outputs are JSON encoded.
func (t *Task) Node() *graphstore.Node {
	n := &graphstore.Node{ID: t.ID, Label: TaskLabel}
	n.SetProp("name", t.Name)
	n.SetProp("description", t.Description)
	n.SetProp("recipe_id", t.RecipeID)
	n.SetProp("status", string(t.Status))
	n.SetProp("created_at", t.CreatedAt.Format(time.RFC3339Nano))
	n.SetProp("updated_at", t.UpdatedAt.Format(time.RFC3339Nano))
	if t.Status == StatusDone {
		n.SetProp("output", encodeOutput(t.Output))
		n.SetProp("direct", strconv.FormatBool(t.Direct))
	}
	if t.Err != nil {
		n.SetProp("error", t.Err.Error())
	}
	return n
}

func encodeOutput(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// FromNode rebuilds a task snapshot from its graph node. Output is decoded from JSON
// when possible and otherwise kept as the raw string.
func FromNode(n *graphstore.Node) (*Task, error) {
	if n == nil || n.Label != TaskLabel {
		return nil, fmt.Errorf("%w: not a %s node", graphstore.ErrInvalidNode, TaskLabel)
	}
	t := &Task{
		ID:          n.ID,
		Name:        n.Prop("name"),
		Description: n.Prop("description"),
		RecipeID:    n.Prop("recipe_id"),
		Status:      Status(n.Prop("status")),
		Direct:      n.Prop("direct") == "true",
	}
	var err error
	if t.CreatedAt, err = parseTime(n, "created_at"); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(n, "updated_at"); err != nil {
		return nil, err
	}
	if raw := n.Prop("output"); raw != "" {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		t.Output = v
	}
	if msg := n.Prop("error"); msg != "" {
		t.Err = errors.New(msg)
	}
	return t, nil
}

// parseTime reads an RFC 3339 timestamp prop. A missing prop is the zero time.
func parseTime(n *graphstore.Node, key string) (time.Time, error) {
	raw := n.Prop(key)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: task %s %s: %v", graphstore.ErrInvalidNode, n.ID, key, err)
	}
	return ts, nil
}
