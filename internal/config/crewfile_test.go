package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleCrew = `
store:
  driver: memory
mode: concurrent
max_parallel: 2
task_timeout: 30s
workers:
  - name: echo
    kind: echo
  - name: py
    kind: subprocess
    command: python3
    args: [worker.py]
    timeout: 10s
    retries: 2
tools:
  - name: upper
    kind: echo
  - name: notify
    kind: webhook
    url: http://localhost:9000/hook
  - name: pipeline
    kind: chain
    chain: [upper, notify]
crew_tools: [upper]
recipes:
  - name: fetch
    description: fetch the data
    worker: echo
  - name: summarize
    description: summarize it
    worker: py
    tools: [pipeline]
    depends_on: [fetch]
`

func TestParse_sample(t *testing.T) {
	t.Parallel()
	cf, err := Parse([]byte(sampleCrew))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cf.Mode != "concurrent" || cf.MaxParallel != 2 || cf.TaskTimeout != 30*time.Second {
		t.Errorf("run settings: %+v", cf)
	}
	if len(cf.Workers) != 2 || cf.Workers[1].Timeout != 10*time.Second || cf.Workers[1].Retries != 2 {
		t.Errorf("workers: %+v", cf.Workers)
	}
	if len(cf.Recipes) != 2 || cf.Recipes[1].DependsOn[0] != "fetch" {
		t.Errorf("recipes: %+v", cf.Recipes)
	}
}

func TestLoad_file(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "crew.yaml")
	if err := os.WriteFile(path, []byte(sampleCrew), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_errors(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unknown worker": `
workers: [{name: w, kind: echo}]
recipes: [{name: a, worker: nope}]`,
		"unknown dependency": `
workers: [{name: w, kind: echo}]
recipes: [{name: a, worker: w, depends_on: [b]}]`,
		"duplicate recipe": `
workers: [{name: w, kind: echo}]
recipes: [{name: a, worker: w}, {name: a, worker: w}]`,
		"subprocess without command": `
workers: [{name: w, kind: subprocess}]
recipes: [{name: a, worker: w}]`,
		"nested chain": `
workers: [{name: w, kind: echo}]
tools: [{name: t, kind: echo}, {name: c1, kind: chain, chain: [t]}, {name: c2, kind: chain, chain: [c1]}]
recipes: [{name: a, worker: w}]`,
		"bad mode": `
mode: parallel
workers: [{name: w, kind: echo}]
recipes: [{name: a, worker: w}]`,
		"bad driver": `
store: {driver: mysql}
workers: [{name: w, kind: echo}]
recipes: [{name: a, worker: w}]`,
		"no recipes": `
workers: [{name: w, kind: echo}]`,
		"not yaml": `: : :`,
	}
	for name, body := range cases {
		if _, err := Parse([]byte(body)); !errors.Is(err, ErrInvalidCrewFile) {
			t.Errorf("%s: expected ErrInvalidCrewFile, got %v", name, err)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log, err := NewLogger("debug", "json", &buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Debug("hello", "recipe", "a")
	if !strings.Contains(buf.String(), `"recipe":"a"`) {
		t.Errorf("json output: %s", buf.String())
	}

	buf.Reset()
	log, _ = NewLogger("warn", "text", &buf)
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %s", buf.String())
	}

	if _, err := NewLogger("loud", "text", &buf); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewLogger("info", "xml", &buf); err == nil {
		t.Error("expected error for unknown format")
	}
}
