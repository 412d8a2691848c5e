package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/railfield/tracksync/internal/models"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record a field observation",
	Long: `Capture records an observation locally. Nothing touches the network;
entries queue for the next sync cycle.`,
}

var (
	captureLocation  string
	captureNotes     string
	captureCondition string
)

var captureScanCmd = &cobra.Command{
	Use:     "scan <qr-payload>",
	Short:   "Record a scanned fitting tag",
	Example: `  tracksync capture scan "RF1:550e8400-e29b-41d4-a716-446655440000:CLIP:ZN-04:7" --location depot-7`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := tsClient.Capture.CaptureScan(context.Background(), args[0], captureLocation)
		return reportCapture(entry, err)
	},
}

var captureInspectionCmd = &cobra.Command{
	Use:     "inspection <subject-id>",
	Short:   "Record an inspection verdict",
	Example: `  tracksync capture inspection 550e8400-e29b-41d4-a716-446655440000 --condition poor --notes "rust on base plate"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := tsClient.Capture.CaptureInspection(context.Background(), args[0], captureCondition, captureNotes)
		return reportCapture(entry, err)
	},
}

var captureMovementCmd = &cobra.Command{
	Use:     "movement <subject-id>",
	Short:   "Record a fitting relocation",
	Example: `  tracksync capture movement 550e8400-e29b-41d4-a716-446655440000 --location siding-12`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := tsClient.Capture.CaptureMovement(context.Background(), args[0], captureLocation, captureNotes)
		return reportCapture(entry, err)
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureScanCmd.Flags().StringVarP(&captureLocation, "location", "l", "",
		"Where the tag was scanned")

	captureInspectionCmd.Flags().StringVar(&captureCondition, "condition", "",
		"Verdict: good, fair, poor, or critical (required)")
	captureInspectionCmd.Flags().StringVarP(&captureNotes, "notes", "n", "",
		"Free-form notes")
	_ = captureInspectionCmd.MarkFlagRequired("condition")

	captureMovementCmd.Flags().StringVarP(&captureLocation, "location", "l", "",
		"New location (required)")
	captureMovementCmd.Flags().StringVarP(&captureNotes, "notes", "n", "",
		"Free-form notes")
	_ = captureMovementCmd.MarkFlagRequired("location")

	captureCmd.AddCommand(captureScanCmd, captureInspectionCmd, captureMovementCmd)
}

func reportCapture(entry *models.TrackingEntry, err error) error {
	if err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		}
		return fmt.Errorf("capture failed: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"entry":   entry,
		})
		return nil
	}

	printSuccess("Captured %s entry %s", entry.Kind, entry.ID)
	printInfo("  Queued for sync (%d pending)", tsClient.Capture.Pending())
	return nil
}
