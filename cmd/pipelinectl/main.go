// Command pipelinectl loads a provider/agent configuration and a workflow
// definition, runs the named pipeline, and exits with the code described in
// the engine's exit semantics (0 success, 1 required-step failure, 2
// cancellation, 3 bad configuration, 4 no available provider).
package main

import "github.com/yarnspinner/pipeline/cmd/pipelinectl/cmd"

func main() {
	cmd.Execute()
}
