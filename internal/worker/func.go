package worker

import (
	"context"
	"fmt"
	"strings"
)

// Func adapts a function to Worker.
type Func func(ctx context.Context, input map[string]any) (any, error)

func (f Func) Invoke(ctx context.Context, input map[string]any) (any, error) {
	return f(ctx, input)
}

// Echo is a deterministic local worker that returns its input. Bound tool names are
// reported under "tools" so callers can observe tool augmentation.
type Echo struct {
	Tools []Tool
}

func (e Echo) Invoke(ctx context.Context, input map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(input)+1)
	for k, v := range input {
		out[k] = v
	}
	if len(e.Tools) > 0 {
		out["tools"] = ToolNames(e.Tools)
	}
	return out, nil
}

func (e Echo) WithTools(tools []Tool) Worker {
	merged := make([]Tool, 0, len(e.Tools)+len(tools))
	merged = append(merged, e.Tools...)
	merged = append(merged, tools...)
	return Echo{Tools: merged}
}

// ToolFunc adapts a named function to Tool.
type ToolFunc struct {
	ToolName string
	Fn       func(ctx context.Context, input any) (any, error)
}

func (t ToolFunc) Name() string { return t.ToolName }

func (t ToolFunc) Invoke(ctx context.Context, input any) (any, error) {
	if t.Fn == nil {
		return nil, fmt.Errorf("tool %s has no function", t.ToolName)
	}
	return t.Fn(ctx, input)
}

// EchoTool returns its input unchanged.
func EchoTool(name string) Tool {
	return ToolFunc{ToolName: name, Fn: func(ctx context.Context, input any) (any, error) { return input, nil }}
}

// chain pipes each tool's output into the next tool.
type chain struct {
	name  string
	tools []Tool
}

// Chain composes tools left to right. An empty name is derived from the member names.
func Chain(name string, tools ...Tool) Tool {
	if name == "" {
		name = strings.Join(ToolNames(tools), "|")
	}
	return chain{name: name, tools: tools}
}

func (c chain) Name() string { return c.name }

func (c chain) Invoke(ctx context.Context, input any) (any, error) {
	cur := input
	for _, t := range c.tools {
		out, err := t.Invoke(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("tool chain %s: %s: %w", c.name, t.Name(), err)
		}
		cur = out
	}
	return cur, nil
}
