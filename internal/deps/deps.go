// Package deps reports whether the external binaries the recorder shells out
// to are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external binary tapedeck needs.
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
	Version     string
	Detail      string
}

// CheckBinaries resolves each requirement on PATH.
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
		switch resolved, err := resolve(cmd); {
		case cmd == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		default:
			status.Command = resolved
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

func resolve(cmd string) (string, error) {
	if cmd == "" {
		return "", exec.ErrNotFound
	}
	return exec.LookPath(cmd)
}
