package app

import (
	"context"
	"errors"
	"testing"

	"github.com/iSevenDays/motleycrew/internal/config"
	"github.com/iSevenDays/motleycrew/internal/crew"
	"github.com/iSevenDays/motleycrew/internal/graphstore/memory"
	"github.com/iSevenDays/motleycrew/internal/task"
)

const crewYAML = `
store: {driver: memory}
workers:
  - {name: echo, kind: echo}
  - {name: flaky, kind: echo, retries: 1}
tools:
  - {name: a, kind: echo}
  - {name: b, kind: echo}
  - {name: ab, kind: chain, chain: [a, b]}
crew_tools: [a]
recipes:
  - {name: fetch, description: fetch, worker: echo}
  - {name: clean, description: clean, worker: flaky, tools: [ab], depends_on: [fetch]}
  - {name: report, description: report, worker: echo, depends_on: [fetch, clean]}
`

func TestBuild_runsCrewFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cf, err := config.Parse([]byte(crewYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c, err := Build(ctx, t.TempDir(), cf, Overrides{MaxParallel: -1}, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer func() { _ = c.Close() }()
	if _, ok := c.Store.(*memory.Store); !ok {
		t.Fatalf("store: %T", c.Store)
	}
	done, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(done) != 3 || done[0].Name != "fetch" || done[2].Name != "report" {
		t.Fatalf("done: %d", len(done))
	}
	tools, _ := done[1].Output.(map[string]any)["tools"].([]string)
	if len(tools) != 2 || tools[0] != "ab" || tools[1] != "a" {
		t.Errorf("clean tools: %v", tools)
	}
}

func TestBuild_overrides(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cf, _ := config.Parse([]byte(crewYAML))
	c, err := Build(ctx, t.TempDir(), cf, Overrides{StoreDriver: config.StoreSQLite, Mode: "concurrent", MaxParallel: 1}, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer func() { _ = c.Close() }()
	if c.Mode() != crew.ModeConcurrent {
		t.Errorf("mode: %s", c.Mode())
	}
	nodes, err := c.Store.ListNodes(ctx, task.RecipeLabel)
	if err != nil || len(nodes) != 3 {
		t.Errorf("persisted recipes: %d %v", len(nodes), err)
	}
}

func TestBuild_rejectsCycle(t *testing.T) {
	t.Parallel()
	cf, err := config.Parse([]byte(`
workers: [{name: w, kind: echo}]
recipes:
  - {name: a, worker: w, depends_on: [b]}
  - {name: b, worker: w, depends_on: [a]}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	store := memory.New()
	_, err = Build(context.Background(), t.TempDir(), cf, Overrides{MaxParallel: -1}, store, nil)
	if !errors.Is(err, crew.ErrDependencyCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if _, err := store.ListNodes(context.Background(), task.RecipeLabel); err != nil {
		t.Errorf("caller's store closed by failed Build: %v", err)
	}
}

func TestBuild_leavesCallerStoreOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cf, err := config.Parse([]byte(crewYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	store := memory.New()
	defer func() { _ = store.Close() }()
	c, err := Build(ctx, t.TempDir(), cf, Overrides{MaxParallel: -1}, store, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	nodes, err := store.ListNodes(ctx, task.RecipeLabel)
	if err != nil {
		t.Fatalf("caller's store closed by Crew.Close: %v", err)
	}
	if len(nodes) != 3 {
		t.Errorf("recipe nodes: %d", len(nodes))
	}
}

func TestOpenStore_unknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := OpenStore(context.Background(), t.TempDir(), config.StoreConfig{Driver: "mysql"}); err == nil {
		t.Fatal("expected error")
	}
}
