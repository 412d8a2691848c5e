package main

import (
	"github.com/spf13/cobra"

	"github.com/railfield/tracksync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or scaffold configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		shown.Auth.Password = ""
		printJSON(shown)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write an example config file",
	Args:  cobra.ExactArgs(1),
	// Writing an example must not require a loadable config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveExample(args[0]); err != nil {
			return err
		}
		if !jsonOutput {
			printSuccess("Wrote example config to %s", args[0])
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
