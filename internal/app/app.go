// Package app assembles a crew from a crew file: it opens the graph store, builds
// workers and tools, registers recipes and wires their dependencies.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iSevenDays/motleycrew/internal/config"
	"github.com/iSevenDays/motleycrew/internal/crew"
	"github.com/iSevenDays/motleycrew/internal/graphstore"
	"github.com/iSevenDays/motleycrew/internal/graphstore/memory"
	"github.com/iSevenDays/motleycrew/internal/graphstore/postgres"
	"github.com/iSevenDays/motleycrew/internal/graphstore/sqlite"
	"github.com/iSevenDays/motleycrew/internal/task"
	"github.com/iSevenDays/motleycrew/internal/worker"
	workergrpc "github.com/iSevenDays/motleycrew/internal/worker/grpc"
)

// Overrides are command-line settings that take precedence over the crew file.
type Overrides struct {
	StoreDriver string
	DSN         string
	Mode        string
	MaxParallel int // < 0 = keep file value
}

// OpenStore opens the graph store selected by sc under home.
func OpenStore(ctx context.Context, home string, sc config.StoreConfig) (graphstore.Store, error) {
	switch sc.Driver {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StorePostgres:
		return postgres.Open(ctx, sc.DSN)
	case "", config.StoreSQLite:
		if sc.DSN != "" {
			return sqlite.OpenDSN(sc.DSN)
		}
		return sqlite.Open(home)
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}

// Crew is an assembled crew and the resources it owns.
type Crew struct {
	*crew.Crew
	Store     graphstore.Store
	ownsStore bool
	closers   []func() error
}

// Close releases remote worker connections and the store when Build opened it.
func (c *Crew) Close() error {
	var first error
	for _, fn := range c.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	if c.ownsStore {
		if err := c.Store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build assembles a crew from cf. When store is nil it is opened from cf.Store and owned
// by the returned Crew.
func Build(ctx context.Context, home string, cf *config.CrewFile, ov Overrides, store graphstore.Store, log *slog.Logger) (*Crew, error) {
	if log == nil {
		log = slog.Default()
	}
	sc := cf.Store
	if ov.StoreDriver != "" {
		sc.Driver = ov.StoreDriver
	}
	if ov.DSN != "" {
		sc.DSN = ov.DSN
	}
	mode := cf.Mode
	if ov.Mode != "" {
		mode = ov.Mode
	}
	maxParallel := cf.MaxParallel
	if ov.MaxParallel >= 0 {
		maxParallel = ov.MaxParallel
	}
	parsedMode, err := crew.ParseMode(mode)
	if err != nil {
		return nil, err
	}

	owned := store == nil
	if owned {
		store, err = OpenStore(ctx, home, sc)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", storeName(sc.Driver), err)
		}
	}
	out := &Crew{Store: store, ownsStore: owned}
	fail := func(err error) (*Crew, error) {
		_ = out.Close()
		return nil, err
	}

	tools, err := buildTools(cf.Tools)
	if err != nil {
		return fail(err)
	}
	workers := make(map[string]worker.Worker, len(cf.Workers))
	for _, wc := range cf.Workers {
		w, closer := buildWorker(home, wc)
		if closer != nil {
			out.closers = append(out.closers, closer)
		}
		workers[wc.Name] = w
	}

	crewTools := make([]worker.Tool, 0, len(cf.CrewTools))
	for _, name := range cf.CrewTools {
		crewTools = append(crewTools, tools[name])
	}
	c, err := crew.New(crew.Options{
		Store:       store,
		Tools:       crewTools,
		Mode:        parsedMode,
		MaxParallel: maxParallel,
		TaskTimeout: cf.TaskTimeout,
		Logger:      log,
	})
	if err != nil {
		return fail(err)
	}
	out.Crew = c

	byName := make(map[string]task.Recipe, len(cf.Recipes))
	for _, rc := range cf.Recipes {
		w, ok := workers[rc.Worker]
		if !ok {
			return fail(fmt.Errorf("recipe %q: unknown worker %q", rc.Name, rc.Worker))
		}
		opts := []task.SimpleOption{task.WithName(rc.Name)}
		for _, tn := range rc.Tools {
			opts = append(opts, task.WithTools(tools[tn]))
		}
		r, err := c.CreateSimpleTask(ctx, rc.Description, w, opts...)
		if err != nil {
			return fail(fmt.Errorf("recipe %q: %w", rc.Name, err))
		}
		byName[rc.Name] = r
	}
	for _, rc := range cf.Recipes {
		for _, dep := range rc.DependsOn {
			if err := c.AddDependency(ctx, byName[dep], byName[rc.Name]); err != nil {
				return fail(err)
			}
		}
	}
	return out, nil
}

func storeName(driver string) string {
	if driver == "" {
		return config.StoreSQLite
	}
	return driver
}

func buildTools(cfgs []config.ToolConfig) (map[string]worker.Tool, error) {
	tools := make(map[string]worker.Tool, len(cfgs))
	for _, tc := range cfgs {
		switch tc.Kind {
		case config.ToolEcho:
			tools[tc.Name] = worker.EchoTool(tc.Name)
		case config.ToolWebhook:
			tools[tc.Name] = worker.Webhook{ToolName: tc.Name, URL: tc.URL, Headers: tc.Headers}
		}
	}
	for _, tc := range cfgs {
		if tc.Kind != config.ToolChain {
			continue
		}
		members := make([]worker.Tool, 0, len(tc.Chain))
		for _, m := range tc.Chain {
			t, ok := tools[m]
			if !ok {
				return nil, fmt.Errorf("tool %q: unknown chain member %q", tc.Name, m)
			}
			members = append(members, t)
		}
		tools[tc.Name] = worker.Chain(tc.Name, members...)
	}
	return tools, nil
}

func buildWorker(home string, wc config.WorkerConfig) (worker.Worker, func() error) {
	var (
		w      worker.Worker
		closer func() error
	)
	switch wc.Kind {
	case config.WorkerSubprocess:
		sp := worker.Subprocess{Command: wc.Command, Args: wc.Args, Timeout: wc.Timeout}
		if wc.Sandbox {
			sp.SandboxHome = home
		}
		w = sp
	case config.WorkerGRPC:
		client := &workergrpc.Client{Addr: wc.Addr}
		w, closer = client, client.Close
	default:
		w = worker.Echo{}
	}
	if wc.Retries > 0 {
		w = worker.Retrying{Worker: w, MaxRetries: wc.Retries, InitialInterval: 200 * time.Millisecond, MaxInterval: 5 * time.Second}
	}
	return w, closer
}
