package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/railfield/tracksync/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local status API",
	Long: `Serve starts the HTTP status API for the UI layer along with the
background probe and sync loops. Runs until interrupted.`,
	Example: `  tracksync serve
  tracksync serve --listen 127.0.0.1:7420`,
	RunE: runServe,
}

var serveListen string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "",
		"Listen address (overrides api.listen)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		if !jsonOutput {
			printWarning("Shutting down...")
		}
		cancel()
	}()

	listen := serveListen
	if listen == "" {
		listen = cfg.API.Listen
	}

	tsClient.Start(ctx)

	server := api.NewServer(
		listen,
		tsClient.Capture,
		tsClient.Sync,
		tsClient.Report,
		tsClient.Queue,
		tsClient.Probe,
		logger,
	)

	if !jsonOutput {
		printInfo("Status API on http://%s", listen)
	}

	return server.ListenAndServe(ctx)
}
