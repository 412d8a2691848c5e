package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/railfield/tracksync/internal/models"
	syncsvc "github.com/railfield/tracksync/internal/services/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload queued entries to the portal",
	Long: `Sync drains the pending queue against every configured endpoint.

One-shot by default. With --watch, tracksync stays running and syncs
whenever connectivity returns or the interval elapses.`,
	Example: `  tracksync sync
  tracksync sync --watch`,
	RunE: runSync,
}

var syncWatch bool

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false,
		"Keep running and sync in the background")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		if !jsonOutput {
			printWarning("Interrupted, stopping...")
		}
		tsClient.Sync.Engine().Cancel()
		cancel()
	}()

	// Establish reachability before the first cycle.
	tsClient.Probe.CheckNow(ctx)

	if syncWatch {
		return runSyncWatch(ctx)
	}
	return runSyncOnce(ctx)
}

func runSyncOnce(ctx context.Context) error {
	engine := tsClient.Sync.Engine()

	if !jsonOutput {
		go printEvents(ctx, engine.Events())
	}

	start := time.Now()
	err := engine.SyncOnce(ctx)

	if errors.Is(err, models.ErrOffline) {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"offline": true,
				"pending": tsClient.Queue.Len(),
			})
			return err
		}
		printWarning("Offline: no endpoint reachable, %d entries still queued", tsClient.Queue.Len())
		return err
	}
	if err != nil {
		return err
	}

	progress := engine.GetProgress()
	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":  true,
			"synced":   progress.Synced,
			"partial":  progress.Partial,
			"failed":   progress.Failed,
			"duration": time.Since(start).String(),
		})
		return nil
	}

	printSuccess("Sync complete: %d synced, %d partial, %d failed (%s)",
		progress.Synced, progress.Partial, progress.Failed,
		time.Since(start).Round(time.Millisecond))
	return nil
}

func runSyncWatch(ctx context.Context) error {
	tsClient.Start(ctx)

	if !jsonOutput {
		printInfo("Watching for connectivity; press Ctrl-C to stop")
		sub := tsClient.Sync.Subscribe()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case event := <-sub:
					printEvent(event)
				}
			}
		}()
	}

	<-ctx.Done()
	return nil
}

func printEvents(ctx context.Context, events <-chan syncsvc.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			printEvent(event)
			if event.Type == syncsvc.EventCompleted || event.Type == syncsvc.EventFailed {
				return
			}
		}
	}
}

func printEvent(event syncsvc.Event) {
	switch event.Type {
	case syncsvc.EventStarted:
		if event.Progress != nil && event.Progress.Total > 0 {
			printInfo("Syncing %d entries...", event.Progress.Total)
		}
	case syncsvc.EventEntrySynced:
		printInfo("  synced  %s", event.EntryID)
	case syncsvc.EventEntryPartial:
		printWarning("  partial %s", event.EntryID)
	case syncsvc.EventEntryFailed:
		if event.Error != nil {
			printError("  failed  %s: %v", event.EntryID, event.Error)
		} else {
			printError("  failed  %s", event.EntryID)
		}
	case syncsvc.EventFailed:
		if event.Error != nil && !errors.Is(event.Error, context.Canceled) {
			printError("Sync failed: %v", event.Error)
		}
	}
}
