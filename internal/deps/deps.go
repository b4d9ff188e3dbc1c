package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// Requirement defines an external executable facewatch relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Commands containing a path separator are checked in place; bare names are
// resolved through $PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = describeLookupFailure(cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = resolved
		results = append(results, status)
	}
	return results
}

func describeLookupFailure(cmd string) string {
	if !strings.ContainsRune(cmd, os.PathSeparator) {
		return fmt.Sprintf("binary %q not found", cmd)
	}
	info, err := os.Stat(cmd)
	switch {
	case err != nil:
		return fmt.Sprintf("%s does not exist", cmd)
	case info.IsDir():
		return fmt.Sprintf("%s is a directory", cmd)
	case unix.Access(cmd, unix.X_OK) != nil:
		return fmt.Sprintf("%s is not executable", cmd)
	default:
		return fmt.Sprintf("%s cannot be executed", cmd)
	}
}
