// Package version holds build-time identifying information for pipelinectl.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String renders a one-line version banner.
func String() string {
	commit := GitCommit
	if len(commit) > 8 {
		commit = commit[:8]
	}
	return fmt.Sprintf("pipelinectl %s (commit: %s, built: %s, %s)",
		Version, commit, BuildDate, runtime.Version())
}
