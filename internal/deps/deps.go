// Package deps reports the availability of the external binaries spool
// shells out to. Results surface in daemon status output so operators can
// tell a missing yt-dlp apart from a stalled queue.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"spool/internal/config"
)

// Requirement names an external tool the daemon invokes.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status records the probe result for one requirement. Command holds the
// resolved absolute path when the binary was found.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// ForConfig returns the requirements implied by the configured tool names.
func ForConfig(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.EngineBinary(),
			Description: "media extraction engine",
		},
		{
			Name:        "ffmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "trim and convert stage",
			Optional:    true,
		},
	}
}

// Check probes each requirement with exec.LookPath.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, probe(req))
	}
	return results
}

func probe(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}
