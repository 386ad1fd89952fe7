package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yarnspinner/pipeline/core"
)

var (
	runConfigPath   string
	runWorkflowPath string
	runInputPath    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workflow against an input map",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := core.LoadConfig(runConfigPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(3)
		}

		def, err := core.LoadWorkflowDef(runWorkflowPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(3)
		}

		router, err := cfg.BuildRouter()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(3)
		}
		pool := cfg.BuildPool(router, nil)

		input, err := readInput(runInputPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(3)
		}

		pipeline := core.NewPipeline(def.Name, pool, def.ToSteps())
		result := pipeline.Run(context.Background(), input)

		encoded, _ := json.MarshalIndent(result.Output, "", "  ")
		fmt.Println(string(encoded))

		os.Exit(exitCodeFor(result))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "pipeline.toml", "path to the provider/agent configuration file")
	runCmd.Flags().StringVar(&runWorkflowPath, "workflow", "workflow.toml", "path to the workflow definition file")
	runCmd.Flags().StringVar(&runInputPath, "input", "", "path to a JSON file of initial input (omit for empty input)")
}

func readInput(path string) (map[string]interface{}, error) {
	if path == "" {
		return map[string]interface{}{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	var input map[string]interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("parsing input file: %w", err)
	}
	return input, nil
}

// exitCodeFor maps a WorkflowResult onto the engine's exit semantics: 0
// success, 1 required-step failure, 2 cancellation, 3 bad configuration, 4
// no available provider.
func exitCodeFor(result core.WorkflowResult) int {
	if result.Err == nil {
		return 0
	}
	if result.Cancelled {
		return 2
	}
	switch core.ErrorKind(result.Err) {
	case core.KindBadConfiguration:
		return 3
	case core.KindNoProvider:
		return 4
	default:
		return 1
	}
}
