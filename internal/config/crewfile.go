package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Worker and tool kinds accepted in a crew file.
const (
	WorkerEcho       = "echo"
	WorkerSubprocess = "subprocess"
	WorkerGRPC       = "grpc"

	ToolEcho    = "echo"
	ToolWebhook = "webhook"
	ToolChain   = "chain"

	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// CrewFile is the YAML description of a crew: where its graph lives, how it runs, and
// the recipes it schedules.
type CrewFile struct {
	Store       StoreConfig    `yaml:"store"`
	Mode        string         `yaml:"mode"`
	MaxParallel int            `yaml:"max_parallel"`
	TaskTimeout time.Duration  `yaml:"task_timeout"`
	Workers     []WorkerConfig `yaml:"workers"`
	Tools       []ToolConfig   `yaml:"tools"`
	// CrewTools are offered to every recipe's worker.
	CrewTools []string       `yaml:"crew_tools"`
	Recipes   []RecipeConfig `yaml:"recipes"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // memory | sqlite | postgres; default sqlite under home
	DSN    string `yaml:"dsn"`
}

type WorkerConfig struct {
	Name    string        `yaml:"name"`
	Kind    string        `yaml:"kind"`
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
	Sandbox bool          `yaml:"sandbox"`
	Addr    string        `yaml:"addr"`
	Retries uint64        `yaml:"retries"`
}

type ToolConfig struct {
	Name    string            `yaml:"name"`
	Kind    string            `yaml:"kind"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Chain   []string          `yaml:"chain"`
}

type RecipeConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Worker      string   `yaml:"worker"`
	Tools       []string `yaml:"tools"`
	DependsOn   []string `yaml:"depends_on"`
}

var ErrInvalidCrewFile = errors.New("invalid crew file")

// Load reads and validates a crew file.
func Load(path string) (*CrewFile, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(body)
}

// Parse decodes and validates crew file YAML.
func Parse(body []byte) (*CrewFile, error) {
	var cf CrewFile
	if err := yaml.Unmarshal(body, &cf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCrewFile, err)
	}
	if err := cf.Validate(); err != nil {
		return nil, err
	}
	return &cf, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCrewFile, fmt.Sprintf(format, args...))
}

// Validate checks kinds and that every worker, tool and dependency reference resolves.
func (cf *CrewFile) Validate() error {
	switch cf.Store.Driver {
	case "", StoreMemory, StoreSQLite, StorePostgres:
	default:
		return invalid("unknown store driver %q", cf.Store.Driver)
	}
	switch cf.Mode {
	case "", "sync", "concurrent":
	default:
		return invalid("unknown mode %q", cf.Mode)
	}
	if cf.MaxParallel < 0 {
		return invalid("max_parallel must be >= 0")
	}
	if cf.TaskTimeout < 0 {
		return invalid("task_timeout must be >= 0")
	}

	workers := make(map[string]bool, len(cf.Workers))
	for _, w := range cf.Workers {
		if w.Name == "" {
			return invalid("worker without name")
		}
		if workers[w.Name] {
			return invalid("duplicate worker %q", w.Name)
		}
		workers[w.Name] = true
		switch w.Kind {
		case WorkerEcho:
		case WorkerSubprocess:
			if w.Command == "" {
				return invalid("worker %q: subprocess requires command", w.Name)
			}
		case WorkerGRPC:
			if w.Addr == "" {
				return invalid("worker %q: grpc requires addr", w.Name)
			}
		default:
			return invalid("worker %q: unknown kind %q", w.Name, w.Kind)
		}
	}

	tools := make(map[string]ToolConfig, len(cf.Tools))
	for _, t := range cf.Tools {
		if t.Name == "" {
			return invalid("tool without name")
		}
		if _, dup := tools[t.Name]; dup {
			return invalid("duplicate tool %q", t.Name)
		}
		tools[t.Name] = t
		switch t.Kind {
		case ToolEcho:
		case ToolWebhook:
			if t.URL == "" {
				return invalid("tool %q: webhook requires url", t.Name)
			}
		case ToolChain:
			if len(t.Chain) == 0 {
				return invalid("tool %q: chain requires members", t.Name)
			}
		default:
			return invalid("tool %q: unknown kind %q", t.Name, t.Kind)
		}
	}
	for _, t := range cf.Tools {
		for _, m := range t.Chain {
			member, ok := tools[m]
			if !ok {
				return invalid("tool %q: unknown chain member %q", t.Name, m)
			}
			if member.Kind == ToolChain {
				return invalid("tool %q: chain member %q is itself a chain", t.Name, m)
			}
		}
	}
	for _, name := range cf.CrewTools {
		if _, ok := tools[name]; !ok {
			return invalid("unknown crew tool %q", name)
		}
	}

	if len(cf.Recipes) == 0 {
		return invalid("no recipes")
	}
	recipes := make(map[string]bool, len(cf.Recipes))
	for _, r := range cf.Recipes {
		if r.Name == "" {
			return invalid("recipe without name")
		}
		if recipes[r.Name] {
			return invalid("duplicate recipe %q", r.Name)
		}
		recipes[r.Name] = true
		if !workers[r.Worker] {
			return invalid("recipe %q: unknown worker %q", r.Name, r.Worker)
		}
		for _, t := range r.Tools {
			if _, ok := tools[t]; !ok {
				return invalid("recipe %q: unknown tool %q", r.Name, t)
			}
		}
	}
	for _, r := range cf.Recipes {
		for _, dep := range r.DependsOn {
			if !recipes[dep] {
				return invalid("recipe %q: unknown dependency %q", r.Name, dep)
			}
		}
	}
	return nil
}
