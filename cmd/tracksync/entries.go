package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/railfield/tracksync/internal/models"
)

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List captured entries",
	RunE:  runEntries,
}

var entriesState string

func init() {
	rootCmd.AddCommand(entriesCmd)

	entriesCmd.Flags().StringVar(&entriesState, "state", "",
		"Filter by sync state: pending, synced, or failed")
}

func runEntries(cmd *cobra.Command, args []string) error {
	entries := tsClient.Capture.List()

	if entriesState != "" {
		filtered := entries[:0]
		for _, entry := range entries {
			if string(entry.SyncState) == entriesState {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"count":   len(entries),
			"entries": entries,
		})
		return nil
	}

	if len(entries) == 0 {
		printInfo("No entries")
		return nil
	}

	for _, entry := range entries {
		line := fmt.Sprintf("%s  %-10s %-7s %s",
			entry.Timestamp.Format("2006-01-02 15:04"),
			entry.Kind, entry.SyncState, entry.ID)

		switch entry.SyncState {
		case models.StateFailed:
			printError("%s", line)
			if entry.SyncError != "" {
				printInfo("    %s", entry.SyncError)
			}
		case models.StateSynced:
			printInfo("%s", line)
		default:
			printWarning("%s", line)
		}
	}

	return nil
}

var discardCmd = &cobra.Command{
	Use:   "discard <entry-id>",
	Short: "Drop one entry from the queue and local store",
	Long:  `Discard removes an entry permanently. Meant for entries the portal has rejected.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := tsClient.Capture.Discard(args[0]); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"success": true, "id": args[0]})
		} else {
			printSuccess("Discarded %s", args[0])
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every captured entry and empty the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearConfirmed {
			return fmt.Errorf("refusing to clear without --yes")
		}
		if err := tsClient.Capture.ClearAll(); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"success": true})
		} else {
			printSuccess("Cleared all entries")
		}
		return nil
	},
}

var clearConfirmed bool

func init() {
	rootCmd.AddCommand(discardCmd)

	clearCmd.Flags().BoolVarP(&clearConfirmed, "yes", "y", false,
		"Confirm deletion of all local entries")
	rootCmd.AddCommand(clearCmd)
}
