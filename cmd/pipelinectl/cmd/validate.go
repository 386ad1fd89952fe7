package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yarnspinner/pipeline/core"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config.toml]",
	Short: "Validate a configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := core.LoadConfig(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(3)
		}

		problems := core.ValidateConfig(cfg)
		if len(problems) == 0 {
			fmt.Println("configuration is valid")
			return nil
		}

		for _, p := range problems {
			fmt.Fprintln(os.Stderr, p.Error())
		}
		os.Exit(3)
		return nil
	},
}
