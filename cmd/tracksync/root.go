package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/railfield/tracksync/internal/client"
	"github.com/railfield/tracksync/internal/config"
	"github.com/railfield/tracksync/internal/events"
)

var (
	cfgFile    string
	jsonOutput bool

	cfg      *config.Config
	logger   *events.Logger
	tsClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "tracksync",
	Short: "Offline capture and sync for track fitting inspections",
	Long: `Tracksync records fitting scans, inspections, and movements while
offline and uploads them to the portal endpoints when connectivity
returns. Captured entries are durable across restarts and never lost
silently.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initClient()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if tsClient != nil {
			_ = tsClient.Stop()
		}
	},
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !jsonOutput {
		printError("%v", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output machine-readable JSON")
}

// initClient loads configuration and builds the service graph. Shared by
// every subcommand through PersistentPreRunE.
func initClient() error {
	loaded, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(logger)

	tsClient, err = client.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}

	return nil
}

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

func printSuccess(format string, args ...interface{}) {
	successColor.Fprintf(os.Stdout, "✓ "+format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	warnColor.Fprintf(os.Stderr, "! "+format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	infoColor.Fprintf(os.Stdout, format+"\n", args...)
}

func printJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
	}
}
