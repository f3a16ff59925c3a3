package sandbox

import (
	"path/filepath"
	"strings"
)

// shellDenyList contains substrings that must not appear in a worker command line.
var shellDenyList = []string{
	"sqlite3",
	"DROP TABLE",
	"DELETE FROM",
	"chmod 777",
	"curl | sh",
	"wget | sh",
	"curl | bash",
	"wget | bash",
	"| sh",
	"| bash",
	"eval $(",
	"> /dev/sd",
	"mkfs.",
	":(){ :|:& };:", // fork bomb
}

// deniedBinaries may not be used as worker commands.
var deniedBinaries = []string{"rm", "mkfs", "dd", "shutdown", "reboot", "psql", "sqlite3"}

// BlockedShellCommand returns true if the command line contains any denied substring.
// Matching is case-insensitive.
func BlockedShellCommand(cmdLine string) bool {
	lower := strings.ToLower(strings.TrimSpace(cmdLine))
	for _, deny := range shellDenyList {
		if strings.Contains(lower, strings.ToLower(deny)) {
			return true
		}
	}
	return false
}

// BlockedCommand reports whether a worker command must not be started, either because
// the binary itself is denied or because the joined command line matches the deny list.
func BlockedCommand(binary string, args []string) bool {
	base := strings.ToLower(filepath.Base(binary))
	for _, d := range deniedBinaries {
		if base == d {
			return true
		}
	}
	return BlockedShellCommand(strings.Join(append([]string{binary}, args...), " "))
}
