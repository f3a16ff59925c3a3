package task

import (
	"context"
	"errors"
	"testing"

	"github.com/iSevenDays/motleycrew/internal/graphstore"
	"github.com/iSevenDays/motleycrew/internal/worker"
)

func TestTask_transitions(t *testing.T) {
	t.Parallel()
	tk := New("r1", "a", "do a")
	if tk.Status != StatusCreated || tk.ID == "" {
		t.Fatalf("new task: %+v", tk)
	}
	if err := tk.SetDone("x", false); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("created -> done: expected ErrInvalidTransition, got %v", err)
	}
	if err := tk.SetRunning(); err != nil {
		t.Fatalf("SetRunning: %v", err)
	}
	if err := tk.SetDone("x", true); err != nil {
		t.Fatalf("SetDone: %v", err)
	}
	if err := tk.SetFailed(errors.New("late")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("done -> failed: expected ErrInvalidTransition, got %v", err)
	}
	if tk.Output != "x" || !tk.Direct {
		t.Errorf("output: %+v", tk)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusRunning, true},
		{StatusRunning, StatusDone, true},
		{StatusRunning, StatusFailed, true},
		{StatusCreated, StatusFailed, false},
		{StatusDone, StatusRunning, false},
		{StatusFailed, StatusRunning, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTask_Input(t *testing.T) {
	t.Parallel()
	tk := New("r1", "b", "do b")
	in := tk.Input(map[string]any{"a": "out-a"})
	if in["id"] != tk.ID || in["name"] != "b" || in["description"] != "do b" {
		t.Errorf("input: %+v", in)
	}
	if in["upstream"].(map[string]any)["a"] != "out-a" {
		t.Errorf("upstream: %+v", in["upstream"])
	}
	if empty := tk.Input(nil)["upstream"].(map[string]any); len(empty) != 0 {
		t.Errorf("nil upstream: %+v", empty)
	}
}

func TestTask_NodeRoundTrip(t *testing.T) {
	t.Parallel()
	tk := New("r1", "a", "do a")
	_ = tk.SetRunning()
	_ = tk.SetDone(map[string]any{"n": 1}, false)
	n := tk.Node()
	if n.Label != TaskLabel || n.Prop("status") != "done" || n.Prop("output") != `{"n":1}` {
		t.Fatalf("node: %+v", n)
	}
	back, err := FromNode(n)
	if err != nil {
		t.Fatalf("FromNode: %v", err)
	}
	if back.ID != tk.ID || back.RecipeID != "r1" || back.Status != StatusDone {
		t.Errorf("snapshot: %+v", back)
	}
	if m, _ := back.Output.(map[string]any); m["n"] != float64(1) {
		t.Errorf("output: %#v", back.Output)
	}

	failed := New("r1", "f", "")
	_ = failed.SetRunning()
	_ = failed.SetFailed(errors.New("boom"))
	back, _ = FromNode(failed.Node())
	if back.Err == nil || back.Err.Error() != "boom" || back.Output != nil {
		t.Errorf("failed snapshot: %+v", back)
	}
}

func TestFromNode_timestamps(t *testing.T) {
	t.Parallel()
	tk := New("r1", "a", "do a")
	back, err := FromNode(tk.Node())
	if err != nil {
		t.Fatalf("FromNode: %v", err)
	}
	if !back.CreatedAt.Equal(tk.CreatedAt) || !back.UpdatedAt.Equal(tk.UpdatedAt) {
		t.Errorf("timestamps: %v %v, want %v %v", back.CreatedAt, back.UpdatedAt, tk.CreatedAt, tk.UpdatedAt)
	}

	n := tk.Node()
	n.SetProp("created_at", "yesterday")
	if _, err := FromNode(n); !errors.Is(err, graphstore.ErrInvalidNode) {
		t.Errorf("corrupt created_at: %v", err)
	}

	n = tk.Node()
	n.SetProp("updated_at", "")
	back, err = FromNode(n)
	if err != nil || !back.UpdatedAt.IsZero() {
		t.Errorf("missing updated_at: %v %v", back, err)
	}
}

func TestSimpleTaskRecipe_lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, err := NewSimpleTaskRecipe("do a", worker.Echo{}, WithName("a"))
	if err != nil {
		t.Fatalf("NewSimpleTaskRecipe: %v", err)
	}
	if r.Done() || r.Node().Prop(PropDone) != "false" || r.Node().Label != RecipeLabel {
		t.Fatalf("fresh recipe node: %+v", r.Node())
	}
	tk, err := r.NextTask(ctx)
	if err != nil || tk == nil {
		t.Fatalf("NextTask: %v %v", tk, err)
	}
	if again, _ := r.NextTask(ctx); again != nil {
		t.Fatal("second task while first is pending")
	}
	_ = tk.SetRunning()
	_ = tk.SetDone("ok", false)
	if err := r.RegisterCompletedTask(ctx, tk); err != nil {
		t.Fatalf("RegisterCompletedTask: %v", err)
	}
	if !r.Done() || r.Node().Prop(PropDone) != "true" {
		t.Fatal("recipe not done after completion")
	}
	if next, _ := r.NextTask(ctx); next != nil {
		t.Fatal("done recipe produced a task")
	}
	if len(r.Tasks()) != 1 || r.LastDone() != tk {
		t.Errorf("tasks: %v", r.Tasks())
	}
}

func TestSimpleTaskRecipe_failureAndRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := NewSimpleTaskRecipe("do a", worker.Echo{})
	if r.Name() == "" {
		t.Fatal("expected a default name")
	}
	tk, _ := r.NextTask(ctx)
	_ = tk.SetRunning()
	_ = tk.SetFailed(errors.New("boom"))
	if err := r.RegisterFailedTask(ctx, tk); err != nil {
		t.Fatalf("RegisterFailedTask: %v", err)
	}
	if r.Done() || !r.Failed() {
		t.Fatal("failed recipe must be not done and failed")
	}
	if next, _ := r.NextTask(ctx); next != nil {
		t.Fatal("failed recipe produced a task")
	}
	r.Retry()
	next, _ := r.NextTask(ctx)
	if next == nil || next == tk {
		t.Fatal("retry did not re-arm the recipe")
	}
}

func TestSimpleTaskRecipe_rejectsForeignTask(t *testing.T) {
	t.Parallel()
	r, _ := NewSimpleTaskRecipe("x", worker.Echo{})
	if err := r.RegisterCompletedTask(context.Background(), New("other", "o", "")); err == nil {
		t.Fatal("expected error for a task the recipe did not produce")
	}
}

func TestNewSimpleTaskRecipe_errors(t *testing.T) {
	t.Parallel()
	if _, err := NewSimpleTaskRecipe("x", worker.Echo{}, WithGeneratedName()); !errors.Is(err, ErrNameGenerationUnsupported) {
		t.Errorf("generate name: %v", err)
	}
	if _, err := NewSimpleTaskRecipe("x", nil); !errors.Is(err, ErrNoWorker) {
		t.Errorf("nil worker: %v", err)
	}
}

func TestBaseRecipe_WorkerBindsTools(t *testing.T) {
	t.Parallel()
	r, _ := NewSimpleTaskRecipe("x", worker.Echo{}, WithTools(worker.EchoTool("own")))
	w, err := r.Worker([]worker.Tool{worker.EchoTool("extra")})
	if err != nil {
		t.Fatalf("Worker: %v", err)
	}
	out, _ := w.Invoke(context.Background(), map[string]any{})
	names := out.(map[string]any)["tools"].([]string)
	if len(names) != 2 || names[0] != "own" || names[1] != "extra" {
		t.Errorf("tools: %v", names)
	}
}
