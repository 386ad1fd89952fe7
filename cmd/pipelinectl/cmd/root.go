package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yarnspinner/pipeline/cmd/pipelinectl/version"
)

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "pipelinectl drives multi-agent pipelines from the command line",
	Long: `pipelinectl loads a provider/agent configuration and a workflow
definition, then runs, validates, or inspects a pipeline.

PIPELINE
  run         Run a workflow against an input map
  validate    Validate a configuration file

UTILITIES
  version     Show version information

Use "pipelinectl <command> --help" for detailed information about a command.`,
}

// Execute runs the root command and exits the process. main.main calls this once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd, validateCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.String())
		return nil
	},
}
