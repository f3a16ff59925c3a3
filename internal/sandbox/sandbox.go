// Package sandbox confines subprocess workers: bubblewrap wrapping on Linux and a deny
// list for command lines that must never run.
package sandbox

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
)

// WrapCommand returns an *exec.Cmd that runs binary with args. If home is non-empty and
// bubblewrap (bwrap) is available on Linux, the command runs inside a minimal bubblewrap
// sandbox. If workDir is non-empty and under home, only workDir is writable and home is
// read-only (so the graph database under home/protected cannot be written). Otherwise the
// whole home is writable.
func WrapCommand(ctx context.Context, home, workDir, binary string, args []string) *exec.Cmd {
	if home == "" || runtime.GOOS != "linux" {
		return exec.CommandContext(ctx, binary, args...)
	}
	bwrap, err := exec.LookPath("bwrap")
	if err != nil {
		return exec.CommandContext(ctx, binary, args...)
	}
	absHome, err := filepath.Abs(home)
	if err != nil {
		return exec.CommandContext(ctx, binary, args...)
	}
	bwrapArgs := append(binds(absHome, workDir), baseArgs...)
	bwrapArgs = append(bwrapArgs, "--", binary)
	bwrapArgs = append(bwrapArgs, args...)
	return exec.CommandContext(ctx, bwrap, bwrapArgs...)
}

var baseArgs = []string{
	"--ro-bind", "/usr", "/usr",
	"--ro-bind", "/lib", "/lib",
	"--ro-bind", "/lib64", "/lib64",
	"--dev", "/dev",
	"--proc", "/proc",
	"--tmpfs", "/tmp",
	"--unshare-pid",
}

func binds(absHome, workDir string) []string {
	if workDir != "" {
		absWork, _ := filepath.Abs(workDir)
		if Within(absHome, absWork) {
			return []string{"--ro-bind", absHome, absHome, "--bind", absWork, absWork}
		}
	}
	return []string{"--bind", absHome, absHome}
}

// Within reports whether path equals dir or lies beneath it. Both must be absolute.
func Within(dir, path string) bool {
	if dir == "" || path == "" {
		return false
	}
	dir = filepath.Clean(dir)
	path = filepath.Clean(path)
	return path == dir || (len(path) > len(dir) && path[:len(dir)] == dir && path[len(dir)] == filepath.Separator)
}
