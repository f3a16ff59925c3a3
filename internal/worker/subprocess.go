package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/iSevenDays/motleycrew/internal/sandbox"
)

// Subprocess runs a local worker binary: stdin = the JSON task input, stdout = NDJSON
// events per line. An event {"type":"output","data":...} sets the task output and
// {"type":"direct_output","data":...} sets it as a DirectOutput; other JSON events are
// logged. Non-JSON lines are collected and used as the output when no output event arrives.
// If SandboxHome is set (and bubblewrap is available on Linux), the process runs inside a
// minimal bwrap sandbox. If SandboxWorkDir is also set (must be under SandboxHome), only
// that directory is writable.
type Subprocess struct {
	Command        string
	Args           []string
	Timeout        time.Duration // 0 = use context only
	SandboxHome    string
	SandboxWorkDir string
	Tools          []Tool
}

const (
	maxEventLine = 4 * 1024 * 1024
	waitDelay    = 5 * time.Second
)

// Event is one NDJSON line emitted by a subprocess worker.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (s Subprocess) Invoke(ctx context.Context, input map[string]any) (any, error) {
	if s.Command == "" {
		return nil, errors.New("subprocess command is required")
	}
	if sandbox.BlockedCommand(s.Command, s.Args) {
		return nil, fmt.Errorf("subprocess command %q is blocked", s.Command)
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	var cmd *exec.Cmd
	if s.SandboxHome != "" {
		cmd = sandbox.WrapCommand(ctx, s.SandboxHome, s.SandboxWorkDir, s.Command, s.Args)
	} else {
		cmd = exec.CommandContext(ctx, s.Command, s.Args...)
	}
	// Tool names are advertised through the environment; invocation stays in-process.
	if len(s.Tools) > 0 {
		cmd.Env = append(os.Environ(), "MOTLEYCREW_TOOLS="+strings.Join(ToolNames(s.Tools), ","))
	}
	reqJSON, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	cmd.Stdin = strings.NewReader(string(reqJSON) + "\n")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Bounds Wait when a descendant keeps stderr open after the worker exits.
	cmd.WaitDelay = waitDelay
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var (
		text   strings.Builder
		out    any
		hasOut bool
	)
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Type == "" {
			text.WriteString(line)
			text.WriteString("\n")
			continue
		}
		switch ev.Type {
		case "output":
			out, hasOut = ev.Data, true
		case "direct_output":
			out, hasOut = DirectOutput{Value: ev.Data}, true
		default:
			slog.Debug("subprocess event", "command", s.Command, "type", ev.Type, "message", ev.Message)
		}
	}
	if err := sc.Err(); err != nil {
		// The child may be blocked writing to a pipe nobody reads any more.
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("subprocess %s: read output: %w", s.Command, err)
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("subprocess %s: %w: %s", s.Command, err, msg)
		}
		return nil, fmt.Errorf("subprocess %s: %w", s.Command, err)
	}
	if hasOut {
		return out, nil
	}
	return strings.TrimSpace(text.String()), nil
}

func (s Subprocess) WithTools(tools []Tool) Worker {
	merged := make([]Tool, 0, len(s.Tools)+len(tools))
	merged = append(merged, s.Tools...)
	s.Tools = append(merged, tools...)
	return s
}
