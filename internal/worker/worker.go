// Package worker defines the executor contracts the crew dispatches tasks to: a Worker
// consumes a task input and produces an output, a Tool is a single-call capability a
// Worker may use while producing it.
package worker

import (
	"context"
	"errors"
	"fmt"
)

// Worker executes one task input. A returned error marks the task failed.
type Worker interface {
	Invoke(ctx context.Context, input map[string]any) (any, error)
}

// Tool is a stateless named capability.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, input any) (any, error)
}

// ToolBinder is implemented by workers that accept scheduler-supplied tools. WithTools
// returns a worker that can use tools in addition to its own.
type ToolBinder interface {
	WithTools(tools []Tool) Worker
}

// DirectOutput is the result kind a worker returns when a tool produced the final output
// and the worker's own post-processing must be bypassed.
type DirectOutput struct {
	Value any
}

// Unwrap returns the plain output value and whether it was a DirectOutput.
func Unwrap(out any) (any, bool) {
	switch v := out.(type) {
	case DirectOutput:
		return v.Value, true
	case *DirectOutput:
		if v == nil {
			return nil, true
		}
		return v.Value, true
	default:
		return out, false
	}
}

// ErrInvalidToolInput is returned by tools that cannot handle the given input.
var ErrInvalidToolInput = errors.New("invalid tool input")

// InvalidToolInput wraps ErrInvalidToolInput with the tool name and input.
func InvalidToolInput(tool string, input any, msg string) error {
	if msg == "" {
		return fmt.Errorf("%w `%v` for tool `%s`", ErrInvalidToolInput, input, tool)
	}
	return fmt.Errorf("%w `%v` for tool `%s`: %s", ErrInvalidToolInput, input, tool, msg)
}

// Bind returns w augmented with tools when w implements ToolBinder, otherwise w itself.
func Bind(w Worker, tools []Tool) Worker {
	if w == nil || len(tools) == 0 {
		return w
	}
	if b, ok := w.(ToolBinder); ok {
		return b.WithTools(tools)
	}
	return w
}

// ToolNames lists tool names in order.
func ToolNames(tools []Tool) []string {
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Name())
	}
	return out
}
